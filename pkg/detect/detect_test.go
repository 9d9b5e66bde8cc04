package detect_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chanpulse/warehouse/pkg/detect"
	"github.com/chanpulse/warehouse/pkg/model"
)

func TestParseImagePath(t *testing.T) {
	tests := []struct {
		path      string
		channel   string
		messageID int64
		wantErr   bool
	}{
		{"data/raw/images/CheMed/123.jpg", "CheMed", 123, false},
		{"images/Tikvah/7.png", "Tikvah", 7, false},
		{"/abs/lake/images/lobelia4cosmetics/99.jpg", "lobelia4cosmetics", 99, false},
		{"images/CheMed/notanid.jpg", "", 0, true},
		{"123.jpg", "", 0, true},
	}

	for _, tt := range tests {
		channel, id, err := detect.ParseImagePath(tt.path)
		if tt.wantErr {
			require.Error(t, err, tt.path)
			continue
		}
		require.NoError(t, err, tt.path)
		require.Equal(t, tt.channel, channel, tt.path)
		require.Equal(t, tt.messageID, id, tt.path)
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name    string
		classes []string
		want    string
	}{
		{"person and product", []string{"person", "bottle"}, model.CategoryPromotional},
		{"product only", []string{"bottle", "cup"}, model.CategoryProductDisplay},
		{"person only", []string{"person"}, model.CategoryLifestyle},
		{"neither", []string{"car", "dog"}, model.CategoryOther},
		{"empty", nil, model.CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, detect.Categorize(tt.classes))
		})
	}
}

func TestAssembleGroupsAndThresholds(t *testing.T) {
	raw := []detect.RawDetection{
		{ImagePath: "images/CheMed/1.jpg", Class: "bottle", Confidence: 0.9},
		{ImagePath: "images/CheMed/1.jpg", Class: "bottle", Confidence: 0.7},
		{ImagePath: "images/CheMed/1.jpg", Class: "person", Confidence: 0.6},
		{ImagePath: "images/CheMed/1.jpg", Class: "dog", Confidence: 0.1},
		{ImagePath: "images/Tikvah/2.jpg", Class: "person", Confidence: 0.8},
	}

	out := detect.Assemble(raw, 0.25)
	require.Len(t, out, 3)

	// Image 1: person + bottle above threshold, dog filtered out.
	require.Equal(t, int64(1), out[0].MessageID)
	require.Equal(t, "bottle", out[0].DetectedClass)
	require.InDelta(t, 0.9, out[0].ConfidenceScore, 1e-9)
	require.Equal(t, model.CategoryPromotional, out[0].ImageCategory)
	require.Equal(t, 3, out[0].NumDetections)

	require.Equal(t, "person", out[1].DetectedClass)
	require.Equal(t, model.CategoryPromotional, out[1].ImageCategory)

	// Image 2: person alone.
	require.Equal(t, int64(2), out[2].MessageID)
	require.Equal(t, model.CategoryLifestyle, out[2].ImageCategory)
	require.Equal(t, "Tikvah", out[2].ChannelName)
}

func TestRunRejectsBlankCommand(t *testing.T) {
	for _, command := range []string{"", "   ", "\t"} {
		r := detect.NewRunner(command, 0.25, zap.NewNop())
		_, err := r.Run(context.Background(), t.TempDir())
		require.Error(t, err)
		require.Contains(t, err.Error(), "not configured")
	}
}

func TestAssembleSkipsUnparseablePaths(t *testing.T) {
	raw := []detect.RawDetection{
		{ImagePath: "images/CheMed/garbage.jpg", Class: "bottle", Confidence: 0.9},
	}
	require.Empty(t, detect.Assemble(raw, 0.25))
}
