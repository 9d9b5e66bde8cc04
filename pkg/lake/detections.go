package lake

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/chanpulse/warehouse/pkg/model"
)

var detectionHeader = []string{
	"message_id",
	"channel_name",
	"image_path",
	"detected_class",
	"confidence_score",
	"image_category",
	"num_detections",
}

// ReadDetectionsCSV reads the detector output file. A missing file is an
// empty result, not an error, so that runs over image-free data proceed.
func ReadDetectionsCSV(path string) ([]model.Detection, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open detections file %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(detectionHeader)

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read detections header: %w", err)
	}
	for i, want := range detectionHeader {
		if header[i] != want {
			return nil, fmt.Errorf("unexpected detections header column %d: got %q, want %q",
				i, header[i], want)
		}
	}

	detections := make([]model.Detection, 0)
	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read detections row: %w", err)
		}
		line++

		d, err := parseDetectionRecord(record)
		if err != nil {
			return nil, fmt.Errorf("detections line %d: %w", line, err)
		}
		detections = append(detections, d)
	}

	return detections, nil
}

// WriteDetectionsCSV writes the full detector output, replacing any
// existing file via temp file and rename.
func WriteDetectionsCSV(path string, detections []model.Detection) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create detections directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create detections file: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(detectionHeader); err != nil {
		f.Close()
		return fmt.Errorf("failed to write detections header: %w", err)
	}
	for _, d := range detections {
		record := []string{
			strconv.FormatInt(d.MessageID, 10),
			d.ChannelName,
			d.ImagePath,
			d.DetectedClass,
			strconv.FormatFloat(d.ConfidenceScore, 'f', 6, 64),
			d.ImageCategory,
			strconv.Itoa(d.NumDetections),
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return fmt.Errorf("failed to write detection row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush detections file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close detections file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to publish detections file: %w", err)
	}
	return nil
}

func parseDetectionRecord(record []string) (model.Detection, error) {
	id, err := strconv.ParseInt(record[0], 10, 64)
	if err != nil {
		return model.Detection{}, fmt.Errorf("bad message_id %q: %w", record[0], err)
	}
	confidence, err := strconv.ParseFloat(record[4], 64)
	if err != nil {
		return model.Detection{}, fmt.Errorf("bad confidence_score %q: %w", record[4], err)
	}
	num, err := strconv.Atoi(record[6])
	if err != nil {
		return model.Detection{}, fmt.Errorf("bad num_detections %q: %w", record[6], err)
	}

	return model.Detection{
		MessageID:       id,
		ChannelName:     record[1],
		ImagePath:       record[2],
		DetectedClass:   record[3],
		ConfidenceScore: confidence,
		ImageCategory:   record[5],
		NumDetections:   num,
	}, nil
}
