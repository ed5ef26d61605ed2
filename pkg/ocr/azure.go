package ocr

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/Azure/go-autorest/autorest"
)

// ProviderAzure names the Azure Computer Vision recognizer.
const ProviderAzure = "azure"

type printedTextRecognizer interface {
	RecognizePrintedTextInStream(ctx context.Context, detectOrientation bool, imageParameter io.ReadCloser, language computervision.OcrLanguages) (computervision.OcrResult, error)
}

// Azure recognizes printed text with the Computer Vision OCR endpoint.
type Azure struct {
	api printedTextRecognizer
}

// NewAzure returns a recognizer authenticated with a Cognitive Services key.
func NewAzure(endpoint, key string) *Azure {
	client := computervision.New(endpoint)
	client.Authorizer = autorest.NewCognitiveServicesAuthorizer(key)
	return &Azure{api: client}
}

// Recognize sends the file as PNG and joins the recognized lines.
func (a *Azure) Recognize(ctx context.Context, data []byte, mimeType string) (Result, error) {
	png, err := toPNG(data, mimeType)
	if err != nil {
		return Result{}, newError(ProviderAzure, CodeUnsupportedFormat, err)
	}
	res, err := a.api.RecognizePrintedTextInStream(ctx, true, io.NopCloser(bytes.NewReader(png)), computervision.OcrLanguagesEs)
	if err != nil {
		return Result{}, wrapCall(ctx, ProviderAzure, err)
	}
	text := joinOCRResult(res)
	if strings.TrimSpace(text) == "" {
		return Result{}, newError(ProviderAzure, CodeEmptyText, nil)
	}
	return Result{Text: text, Provider: ProviderAzure}, nil
}

// joinOCRResult renders regions as blocks of lines, words joined by spaces.
func joinOCRResult(res computervision.OcrResult) string {
	if res.Regions == nil {
		return ""
	}
	var lines []string
	for _, region := range *res.Regions {
		if region.Lines == nil {
			continue
		}
		for _, line := range *region.Lines {
			if line.Words == nil {
				continue
			}
			words := make([]string, 0, len(*line.Words))
			for _, w := range *line.Words {
				if w.Text != nil {
					words = append(words, *w.Text)
				}
			}
			if len(words) > 0 {
				lines = append(lines, strings.Join(words, " "))
			}
		}
	}
	return strings.Join(lines, "\n")
}
