package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/PolybrainAI/polybrain-core/internal/version"
)

//go:embed guide.md
var builtinGuide string

// BuiltinGuide returns the scripting library guide shipped with the binary.
func BuiltinGuide() string {
	return builtinGuide
}

// LoadGuide returns the scripting guide given to the coder. A local file
// wins over a URL; with neither, the built-in guide is used. The result is
// meant to be loaded once and reused by every session.
func LoadGuide(ctx context.Context, filePath, url string, client *http.Client) (string, error) {
	switch {
	case filePath != "":
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("read guide: %w", err)
		}
		return string(data), nil
	case url != "":
		return fetchGuide(ctx, url, client)
	default:
		return builtinGuide, nil
	}
}

func fetchGuide(ctx context.Context, url string, client *http.Client) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build guide request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch guide: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch guide: status %d", res.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read guide body: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("fetch guide: empty body")
	}
	return string(data), nil
}
