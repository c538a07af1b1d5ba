// Package downloader coordinates a single asynchronous request whose
// payload is later saved as a file.
//
// # Request Cycle
//
// A [Downloader] runs its before-chain, calls the injected [RequestFunc],
// classifies the response and caches a successful payload:
//
//	d, _ := downloader.New(downloader.WithDir("/tmp"))
//	d.Before(confirm).
//		After(func() { fmt.Println("settled") }).
//		OnError(func(err error) { fmt.Println("failed:", err) }).
//		Request(c.Fetch(http.MethodGet, u, http.StatusOK))
//
// Calling [Downloader.Request] again while a request is in flight does
// nothing.
//
// Register hooks before calling Request. The cycle runs on the scheduler
// and reads the error and completion hooks only when it settles, so a
// hook attached after Request is honored only if it lands before then.
// With the default scheduler that is a race: a fast RequestFunc can
// settle before the caller's next statement runs. Callers that need to
// attach hooks later can pass [WithScheduler] and dispatch the cycle
// themselves.
//
// # Before-Chain
//
// Each [Step] receives a proceed func and must call it exactly once,
// possibly from another goroutine after its own asynchronous work:
//
//	d.Before(func(proceed func()) {
//		go func() {
//			refreshAuth()
//			proceed()
//		}()
//	})
//
// Steps run strictly in registration order, never inline with the
// Request call itself.
//
// # Saving
//
// [Downloader.Download] saves the cached payload, or waits for the
// in-flight one, through the configured [Materializer]:
//
//	d.Download("report.pdf", "application/pdf")
package downloader
