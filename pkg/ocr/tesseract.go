package ocr

import (
	"context"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"gastos/pkg/logger"
)

// ProviderTesseract names the local Tesseract recognizer.
const ProviderTesseract = "tesseract"

// weakSignal is the score under which the adaptive threshold pass is tried.
const weakSignal = 40

type pass struct {
	name string
	psm  gosseract.PageSegMode
	img  func() ([]byte, error)
}

// Tesseract recognizes text locally with gosseract. A fresh client is used
// per pass so a Tesseract instance is safe for concurrent use.
type Tesseract struct {
	languages []string
}

// TesseractOption configures a Tesseract recognizer.
type TesseractOption func(*Tesseract)

// WithLanguages overrides the Tesseract language models.
func WithLanguages(langs ...string) TesseractOption {
	return func(t *Tesseract) {
		if len(langs) > 0 {
			t.languages = langs
		}
	}
}

// NewTesseract returns a recognizer using Spanish and English models.
func NewTesseract(opts ...TesseractOption) *Tesseract {
	t := &Tesseract{languages: []string{"spa", "eng"}}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Recognize normalizes the file to an image and runs the OCR passes,
// keeping the text with the most signal.
func (t *Tesseract) Recognize(ctx context.Context, data []byte, mimeType string) (Result, error) {
	img, err := decodeImage(data, mimeType)
	if err != nil {
		return Result{}, newError(ProviderTesseract, CodeUnsupportedFormat, err)
	}
	enhanced := enhance(img)
	passes := []pass{
		{name: "enhanced", psm: gosseract.PSM_AUTO, img: func() ([]byte, error) { return encodePNG(enhanced) }},
		{name: "single_block", psm: gosseract.PSM_SINGLE_BLOCK, img: func() ([]byte, error) { return encodePNG(enhanced) }},
		{name: "adaptive", psm: gosseract.PSM_AUTO, img: func() ([]byte, error) {
			return encodePNG(dilate(adaptiveThreshold(enhanced, 15, 7), 1))
		}},
	}

	log := logger.FromContext(ctx)
	var best string
	var bestScore int
	for i, p := range passes {
		if err := ctx.Err(); err != nil {
			return Result{}, wrapCall(ctx, ProviderTesseract, err)
		}
		// The adaptive pass is only worth its cost on weak results.
		if i == 2 && bestScore >= weakSignal {
			break
		}
		png, err := p.img()
		if err != nil {
			log.Debug().Err(err).Str("pass", p.name).Msg("ocr pass image failed")
			continue
		}
		text, err := t.run(png, p.psm)
		if err != nil {
			log.Debug().Err(err).Str("pass", p.name).Msg("ocr pass failed")
			continue
		}
		if s := signal(text); s > bestScore {
			best, bestScore = text, s
		}
		log.Debug().Str("pass", p.name).Int("signal", signal(text)).Msg("ocr pass")
	}
	if strings.TrimSpace(best) == "" {
		return Result{}, newError(ProviderTesseract, CodeEmptyText, nil)
	}
	return Result{Text: best, Provider: ProviderTesseract}, nil
}

func (t *Tesseract) run(png []byte, psm gosseract.PageSegMode) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(t.languages...); err != nil {
		return "", err
	}
	if err := client.SetPageSegMode(psm); err != nil {
		return "", err
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return "", err
	}
	return client.Text()
}
