package detect

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/chanpulse/warehouse/pkg/model"
)

// RawDetection is one line of detector output, one object per detected
// class per image.
type RawDetection struct {
	ImagePath  string  `json:"image_path"`
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// Runner invokes the detector command once per run and assembles its
// output into detection records.
type Runner struct {
	command             string
	confidenceThreshold float64
	logger              *zap.Logger
}

// NewRunner creates a detector runner
func NewRunner(command string, confidenceThreshold float64, logger *zap.Logger) *Runner {
	return &Runner{
		command:             command,
		confidenceThreshold: confidenceThreshold,
		logger:              logger,
	}
}

// Run detects objects in every image under imagesDir. The detector command
// receives the images directory as its only argument and emits JSON lines
// on stdout.
func (r *Runner) Run(ctx context.Context, imagesDir string) ([]model.Detection, error) {
	if strings.TrimSpace(r.command) == "" {
		return nil, fmt.Errorf("detector command not configured")
	}
	if _, err := os.Stat(imagesDir); os.IsNotExist(err) {
		r.logger.Info("No images directory, skipping detection",
			zap.String("dir", imagesDir))
		return nil, nil
	}

	raw, err := r.invoke(ctx, imagesDir)
	if err != nil {
		return nil, err
	}

	detections := Assemble(raw, r.confidenceThreshold)
	r.logger.Info("Detection completed",
		zap.Int("RawDetections", len(raw)),
		zap.Int("records", len(detections)))

	return detections, nil
}

func (r *Runner) invoke(ctx context.Context, imagesDir string) ([]RawDetection, error) {
	parts := strings.Fields(r.command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("detector command not configured")
	}
	args := append(parts[1:], imagesDir)

	cmd := exec.CommandContext(ctx, parts[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open detector stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start detector: %w", err)
	}

	raw := make([]RawDetection, 0)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var d RawDetection
		if err := json.Unmarshal([]byte(line), &d); err != nil {
			r.logger.Warn("Skipping unparseable detector line",
				zap.String("line", line),
				zap.Error(err))
			continue
		}
		raw = append(raw, d)
	}
	if err := scanner.Err(); err != nil {
		cmd.Wait()
		return nil, fmt.Errorf("failed to read detector output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("detector failed: %w (stderr: %s)", err, stderr.String())
	}
	return raw, nil
}

// Assemble groups per-class detections by image, applies the confidence
// threshold and derives each image's category. Output is ordered by
// message id then class.
func Assemble(raw []RawDetection, confidenceThreshold float64) []model.Detection {
	type imageKey struct {
		channel   string
		messageID int64
		path      string
	}

	byImage := make(map[imageKey][]RawDetection)
	for _, d := range raw {
		if d.Confidence < confidenceThreshold {
			continue
		}
		channel, id, err := ParseImagePath(d.ImagePath)
		if err != nil {
			continue
		}
		k := imageKey{channel, id, d.ImagePath}
		byImage[k] = append(byImage[k], d)
	}

	detections := make([]model.Detection, 0, len(raw))
	for k, group := range byImage {
		// One record per class, keeping the strongest confidence.
		best := make(map[string]float64, len(group))
		classes := make([]string, 0, len(group))
		for _, d := range group {
			if prev, seen := best[d.Class]; !seen || d.Confidence > prev {
				if _, seen := best[d.Class]; !seen {
					classes = append(classes, d.Class)
				}
				best[d.Class] = d.Confidence
			}
		}

		category := Categorize(classes)
		for _, class := range classes {
			detections = append(detections, model.Detection{
				MessageID:       k.messageID,
				ChannelName:     k.channel,
				ImagePath:       filepath.ToSlash(k.path),
				DetectedClass:   class,
				ConfidenceScore: best[class],
				ImageCategory:   category,
				NumDetections:   len(group),
			})
		}
	}

	sort.Slice(detections, func(i, j int) bool {
		if detections[i].MessageID != detections[j].MessageID {
			return detections[i].MessageID < detections[j].MessageID
		}
		return detections[i].DetectedClass < detections[j].DetectedClass
	})
	return detections
}
