// Package detect runs the external object detector over lake images and
// turns its output into detection records for loading.
package detect

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chanpulse/warehouse/pkg/model"
)

// Object classes treated as people or products when categorising an image.
var (
	personClasses = map[string]bool{
		"person": true,
	}
	productClasses = map[string]bool{
		"bottle":     true,
		"cup":        true,
		"bowl":       true,
		"book":       true,
		"cell phone": true,
		"scissors":   true,
		"toothbrush": true,
	}
)

// ParseImagePath extracts the channel and message id from a lake image
// path of the form .../<channel>/<message_id>.jpg.
func ParseImagePath(path string) (channel string, messageID int64, err error) {
	dir, file := filepath.Split(filepath.Clean(path))
	channel = filepath.Base(strings.TrimSuffix(dir, string(filepath.Separator)))

	stem := strings.TrimSuffix(file, filepath.Ext(file))
	messageID, err = strconv.ParseInt(stem, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("image path %s has no message id: %w", path, err)
	}
	if channel == "" || channel == "." || channel == string(filepath.Separator) {
		return "", 0, fmt.Errorf("image path %s has no channel directory", path)
	}
	return channel, messageID, nil
}

// Categorize maps the set of classes detected in one image to its category.
// An image with both people and products is promotional; products alone are
// product display; people alone are lifestyle; anything else is other.
func Categorize(classes []string) string {
	hasPerson := false
	hasProduct := false
	for _, c := range classes {
		switch {
		case personClasses[c]:
			hasPerson = true
		case productClasses[c]:
			hasProduct = true
		}
	}

	switch {
	case hasPerson && hasProduct:
		return model.CategoryPromotional
	case hasProduct:
		return model.CategoryProductDisplay
	case hasPerson:
		return model.CategoryLifestyle
	default:
		return model.CategoryOther
	}
}
