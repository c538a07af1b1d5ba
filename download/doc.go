// Package download holds the pieces a request cycle needs once the network
// call has been made: the in-flight [Result] handle callers wait on, and
// [Materialize], which turns a payload into a named file on disk.
//
// # Materializing
//
// [Materialize] writes the payload to a hidden temporary file alongside the
// destination, then renames it into place. The temporary file is removed
// whether or not the rename happens:
//
//	path, err := download.Materialize(ctx, bytes.NewReader(data), "/tmp",
//		download.Target{FileName: "report", MIME: "application/pdf"}, logger,
//	)
//	// path == "/tmp/report.pdf"
//
// Most callers go through [github.com/adamwoolhether/savefile/downloader],
// which drives Materialize via [FileMaterializer].
package download
