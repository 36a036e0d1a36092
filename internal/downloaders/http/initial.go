package rangehttp

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/segfetch/internal/utils"
)

var validate = newValidator()

var filenameRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-\. ]+`)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateJob rejects a job before any network activity happens.
func ValidateJob(job utils.FetchJob) error {
	if err := validate.Struct(job); err != nil {
		verrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return &InvalidJobError{Detail: err.Error()}
		}
		parts := make([]string, len(verrors))
		for i, verr := range verrors {
			parts[i] = fmt.Sprintf("%s failed %q (got %v)", verr.Field(), verr.Tag(), verr.Value())
		}
		return &InvalidJobError{Detail: strings.Join(parts, "; ")}
	}
	return nil
}

// LengthProber resolves the total size of the remote resource.
type LengthProber interface {
	Probe(ctx context.Context, url string) (utils.RemoteInfo, error)
}

type HeadProber struct {
	client utils.HTTPDoer
}

func NewHeadProber(client utils.HTTPDoer) *HeadProber {
	return &HeadProber{client: client}
}

// Probe asks for the length with HEAD and falls back to an unranged GET,
// whose body is closed unread, when HEAD fails or reports no length.
func (p *HeadProber) Probe(ctx context.Context, link string) (utils.RemoteInfo, error) {
	info, status, err := p.probe(ctx, http.MethodHead, link)
	if err != nil {
		return info, err
	}
	if info.Length >= 0 {
		return info, nil
	}
	log.Debug().Str("op", "http/initial").Int("status", status).Msg("HEAD reported no length, falling back to GET")
	info, status, err = p.probe(ctx, http.MethodGet, link)
	if err != nil {
		return info, err
	}
	if info.Length < 0 {
		return info, &UnknownLengthError{URL: link, StatusCode: status}
	}
	return info, nil
}

func (p *HeadProber) probe(ctx context.Context, method, link string) (utils.RemoteInfo, int, error) {
	info := utils.RemoteInfo{Length: -1}
	req, err := http.NewRequestWithContext(ctx, method, link, nil)
	if err != nil {
		return info, 0, fmt.Errorf("error creating %s request: %w", method, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return info, 0, &TransportError{Index: -1, Op: "probing length", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		// Probe retries a refused HEAD as GET.
		if method == http.MethodHead {
			return info, resp.StatusCode, nil
		}
		return info, resp.StatusCode, &UnknownLengthError{URL: link, StatusCode: resp.StatusCode}
	}
	info.Length = resp.ContentLength
	info.AcceptRanges = resp.Header.Get("Accept-Ranges") == "bytes"
	info.FileName = fileNameFromHeader(resp.Header.Get("Content-Disposition"))
	log.Debug().Str("op", "http/initial").Str("method", method).Int64("length", info.Length).
		Bool("acceptRanges", info.AcceptRanges).Msg("probed remote resource")
	return info, resp.StatusCode, nil
}

func fileNameFromHeader(contentDisposition string) string {
	if contentDisposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentDisposition)
	if err != nil {
		return ""
	}
	if fn, ok := params["filename"]; ok && fn != "" {
		return filenameRegex.ReplaceAllString(fn, "_")
	}
	if fn, ok := params["filename*"]; ok && strings.HasPrefix(fn, "UTF-8''") {
		unescaped, _ := url.PathUnescape(strings.TrimPrefix(fn, "UTF-8''"))
		return filenameRegex.ReplaceAllString(unescaped, "_")
	}
	return ""
}

// InferFileName picks a local name for the payload when none was given.
func InferFileName(link, fromHeader string) string {
	if fromHeader != "" {
		return fromHeader
	}
	parsedURL, err := url.Parse(link)
	if err != nil {
		return "download"
	}
	pathParts := strings.Split(parsedURL.Path, "/")
	name := pathParts[len(pathParts)-1]
	if name == "" {
		return "download"
	}
	return name
}
