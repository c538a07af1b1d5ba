package download

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var validate *validator.Validate
var translator ut.Translator

func init() {
	validate = validator.New()
	translator, _ = ut.New(en.New(), en.New()).GetTranslator("en")
	err := en_translations.RegisterDefaultTranslations(validate, translator)
	if err != nil {
		panic(err)
	}
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}

		return name
	})

	if err := validate.RegisterValidation("bare_filename", isBareFileName); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("media_type", isMediaType); err != nil {
		panic(err)
	}
}

// Target names the file a payload is saved as.
type Target struct {
	FileName string `json:"fileName" validate:"required,bare_filename"`
	MIME     string `json:"mime" validate:"required,media_type"`
}

// Validate checks the target against its declared tags.
func (t Target) Validate() error {
	if err := validate.Struct(t); err != nil {
		var verrors validator.ValidationErrors
		if !errors.As(err, &verrors) {
			return err
		}

		var fields FieldErrors
		for _, verror := range verrors {
			field := FieldError{
				Field: verror.Field(),
				Err:   customErrForTag(verror.Tag(), verror),
			}
			fields = append(fields, field)
		}

		return &Error{Err: ErrInvalidTarget, Detail: fields.Error()}
	}

	return nil
}

// Name returns the file name to write. When FileName carries no
// extension, one is derived from MIME if the type is known.
func (t Target) Name() string {
	if filepath.Ext(t.FileName) != "" {
		return t.FileName
	}

	return t.FileName + extensionFor(t.MIME)
}

type FieldError struct {
	Field string `json:"field"`
	Err   string `json:"error"`
}

// FieldErrors represents a collection of field errors.
type FieldErrors []FieldError

// Error implements the error interface.
func (fe FieldErrors) Error() string {
	d, err := json.Marshal(fe)
	if err != nil {
		return err.Error()
	}
	return string(d)
}

func customErrForTag(tag string, verror validator.FieldError) string {
	switch tag {
	case "required":
		return "This field is required"
	case "bare_filename":
		return fmt.Sprintf("%q must be a bare file name", verror.Value())
	case "media_type":
		return fmt.Sprintf("%q is not a valid media type", verror.Value())
	default:
		return verror.Translate(translator)
	}
}

func isBareFileName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "." || name == ".." {
		return false
	}

	return !strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}

func isMediaType(fl validator.FieldLevel) bool {
	_, _, err := mime.ParseMediaType(fl.Field().String())
	return err == nil
}

// extensionFor resolves a file extension for the given media type,
// preferring mimetype's table and falling back to the system one.
func extensionFor(mediaType string) string {
	if m := mimetype.Lookup(mediaType); m != nil {
		return m.Extension()
	}

	bare, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return ""
	}
	if m := mimetype.Lookup(bare); m != nil {
		return m.Extension()
	}

	exts, err := mime.ExtensionsByType(bare)
	if err != nil || len(exts) == 0 {
		return ""
	}

	return exts[0]
}
