package models

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Labels maps class index to label text in the model's training order.
type Labels []string

// Lookup returns the label for class, or UnknownLabel when class is out of range.
func (l Labels) Lookup(class int) string {
	if class < 0 || class >= len(l) {
		return UnknownLabel
	}
	return l[class]
}

// Index returns the class index of label, or -1.
func (l Labels) Index(label string) int {
	for i, name := range l {
		if strings.EqualFold(name, label) {
			return i
		}
	}
	return -1
}

// Name is the label shown and stored for d.
func (l Labels) Name(d Detection) string {
	if d.Label != "" {
		return d.Label
	}
	return l.Lookup(d.Class)
}

// LoadLabels reads one label per line. Blank lines are skipped.
func LoadLabels(file string) (Labels, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, errors.Wrap(err, "open labels file")
	}
	defer f.Close()

	var labels Labels
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		labels = append(labels, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read labels file")
	}

	return labels, nil
}
