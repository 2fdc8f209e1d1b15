package speech

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Transcribe прогоняет движок по волне и склеивает сегменты без разделителя.
// При ошибке движка частичный транскрипт не возвращается.
func Transcribe(ctx context.Context, engine Engine, samples []float32, params DecodeParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params.Sampling = SamplingGreedy
	if err := engine.Decode(params, samples); err != nil {
		return "", fmt.Errorf("%w: decode %d samples: %w", ErrEngine, len(samples), err)
	}

	n := engine.SegmentCount()
	var out strings.Builder
	for i := 0; i < n; i++ {
		seg := engine.SegmentText(i)
		slog.InfoContext(ctx, "сегмент", "segment", i, "text", seg)
		out.WriteString(seg)
	}

	slog.DebugContext(ctx, "распознавание завершено", "segments", n, "chars", out.Len())
	return out.String(), nil
}
