package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	// ProviderGemini names the Gemini vision recognizer.
	ProviderGemini = "gemini"
	// DefaultGeminiModel is used when no model is configured.
	DefaultGeminiModel = "gemini-2.5-flash"
	// DefaultGeminiTimeout bounds a single Gemini call.
	DefaultGeminiTimeout = 30 * time.Second
)

// ContentGenerator is the slice of the genai client the recognizer uses.
type ContentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

type modelsAdapter struct {
	models *genai.Models
}

func (m *modelsAdapter) GenerateContent(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	resp, err := m.models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("genai.GenerateContent: %w", err)
	}
	return resp, nil
}

// Gemini asks a vision model for the receipt fields as JSON.
type Gemini struct {
	generator  ContentGenerator
	model      string
	categories []string
	timeout    time.Duration
}

// GeminiOption configures a Gemini recognizer.
type GeminiOption func(*Gemini)

// WithGeminiCategories lists the category names the model may choose from.
func WithGeminiCategories(names []string) GeminiOption {
	return func(g *Gemini) { g.categories = names }
}

// WithGeminiTimeout bounds each call.
func WithGeminiTimeout(d time.Duration) GeminiOption {
	return func(g *Gemini) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// NewGemini creates a recognizer backed by the Gemini API.
func NewGemini(ctx context.Context, apiKey, model string, opts ...GeminiOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return NewGeminiWithGenerator(&modelsAdapter{models: client.Models}, model, opts...), nil
}

// NewGeminiWithGenerator creates a recognizer over any ContentGenerator.
func NewGeminiWithGenerator(gen ContentGenerator, model string, opts ...GeminiOption) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	g := &Gemini{generator: gen, model: model, timeout: DefaultGeminiTimeout}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Recognize returns the model's JSON answer as Structured.
func (g *Gemini) Recognize(ctx context.Context, data []byte, mimeType string) (Result, error) {
	png, err := toPNG(data, mimeType)
	if err != nil {
		return Result{}, newError(ProviderGemini, CodeUnsupportedFormat, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.generator.GenerateContent(callCtx, g.model, []*genai.Content{
		{
			Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: "image/png", Data: png}},
				{Text: buildReceiptPrompt(g.categories)},
			},
		},
	}, &genai.GenerateContentConfig{ResponseMIMEType: "application/json"})
	if err != nil {
		return Result{}, wrapCall(callCtx, ProviderGemini, err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Result{}, newError(ProviderGemini, CodeEmptyText, fmt.Errorf("no candidates"))
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return Result{}, newError(ProviderGemini, CodeEmptyText, nil)
	}
	return Result{Text: text, Structured: []byte(text), Provider: ProviderGemini}, nil
}

func buildReceiptPrompt(categories []string) string {
	var sb strings.Builder
	sb.WriteString(`Analiza esta boleta o factura chilena y extrae los datos.

Responde SOLO con JSON válido, sin texto adicional ni bloques de código, con este formato:
{
  "date": "YYYY-MM-DD",
  "total": 0,
  "taxAmount": 0,
  "vendor": "Nombre del comercio",
  "category": "Categoría",
  "description": "Descripción breve de la compra"
}

Reglas:
- "total" es el monto total a pagar en pesos chilenos, como número entero sin puntos ni símbolos.
- "taxAmount" es el IVA informado, o 0 si no aparece.
- "date" es la fecha de emisión; usa null si no se encuentra.
- "vendor" es la razón social o nombre del comercio que aparece en el encabezado.
`)
	if len(categories) > 0 {
		sb.WriteString("- \"category\" debe ser una de: ")
		sb.WriteString(strings.Join(categories, ", "))
		sb.WriteString(".\n")
	}
	return sb.String()
}
