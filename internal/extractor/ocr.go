package extractor

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"

	"visionrag/internal/domain"
)

// Tesseract runs the tesseract binary over a rendered page. The engine
// is treated as an opaque, best-effort oracle: empty output is "no
// text available", only process-level problems are errors.
type Tesseract struct {
	command string
	lang    string
}

var _ domain.OCR = (*Tesseract)(nil)

func NewTesseract(command, lang string) *Tesseract {
	if command == "" {
		command = "tesseract"
	}
	if lang == "" {
		lang = "eng"
	}
	return &Tesseract{command: command, lang: lang}
}

// Recognize writes the image to a temp file and reads the recognized
// text from tesseract's stdout.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (string, error) {
	tmp, err := os.CreateTemp("", "visionrag-ocr-*.png")
	if err != nil {
		return "", fmt.Errorf("ocr temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		return "", fmt.Errorf("ocr encode page: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, t.command, tmp.Name(), "stdout", "-l", t.lang)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("run %s: %w", t.command, err)
	}
	return string(out), nil
}
