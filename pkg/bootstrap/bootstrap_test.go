package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"gastos/pkg/config"
	"gastos/pkg/extract"
	"gastos/pkg/ocr"
	"gastos/pkg/storage"
)

func TestRecognizer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	rec, err := Recognizer(ctx, &config.Config{OCRProvider: "tesseract"}, nil)
	require.NoError(t, err)
	require.IsType(t, &ocr.Tesseract{}, rec)

	rec, err = Recognizer(ctx, &config.Config{OCRProvider: "azure", AzureEndpoint: "https://example.invalid", AzureAPIKey: "k"}, nil)
	require.NoError(t, err)
	chain, ok := rec.(ocr.Chain)
	require.True(t, ok)
	require.Len(t, chain, 2)
	require.IsType(t, &ocr.Azure{}, chain[0])

	_, err = Recognizer(ctx, &config.Config{OCRProvider: "paddle"}, nil)
	require.Error(t, err)
}

func TestStorage(t *testing.T) {
	t.Parallel()
	st, err := Storage(context.Background(), &config.Config{StorageBackend: "local", UploadBase: t.TempDir()})
	require.NoError(t, err)
	require.IsType(t, &storage.Local{}, st)

	_, err = Storage(context.Background(), &config.Config{StorageBackend: "ftp"})
	require.Error(t, err)
}

func TestPipelineForUsesCategories(t *testing.T) {
	t.Parallel()
	rules := []extract.CategoryRule{{Name: "Café", Keywords: []string{"espresso"}}}
	p, err := PipelineFor(context.Background(), &config.Config{OCRProvider: "tesseract", ScanParallelism: 2}, rules, extract.NewScorer())
	require.NoError(t, err)
	require.NotNil(t, p.Processor)
	require.Equal(t, "Café", p.Extractor.Categorize("un espresso doble"))
}
