// Package visual implements pixel-level comparison of screen captures
// against stored baselines. Baselines live on disk as plain text matrices;
// a bounded in-memory cache fronts them so repeated verifications of the
// same screen avoid rereading files.
package visual

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// UseDefaultSensitivity tells Verify to apply the core's default threshold.
const UseDefaultSensitivity = -1

// Verification statuses.
const (
	StatusBaselineCreated = "baseline_created"
	StatusPass            = "pass"
	StatusFail            = "fail"
)

var (
	// ErrDimensionMismatch indicates the capture and baseline differ in shape.
	ErrDimensionMismatch = errors.New("baseline and image dimensions do not match")

	// ErrPixelOutOfRange indicates a pixel value outside [0, 255].
	ErrPixelOutOfRange = errors.New("pixel values must be between 0 and 255")

	// ErrInvalidSensitivity indicates a sensitivity outside [0, 1].
	ErrInvalidSensitivity = errors.New("sensitivity must be between 0 and 1")
)

// Pixels is a grayscale pixel matrix with values in [0, 255].
type Pixels [][]int

// Result is the outcome of comparing a capture against the stored baseline.
type Result struct {
	ScreenID               string   `json:"screen_id"`
	Status                 string   `json:"status"`
	DiffRatio              float64  `json:"diff_ratio"`
	Sensitivity            float64  `json:"sensitivity"`
	BaselinePath           string   `json:"baseline_path"`
	DiffPath               string   `json:"diff_path,omitempty"`
	RemediationSuggestions []string `json:"remediation_suggestions"`
}

// Core holds baselines and performs the pixel diff.
type Core struct {
	storageDir         string
	defaultSensitivity float64
	baselines          *lru.Cache[string, Pixels]
}

// Options tunes a Core. Zero values select the defaults.
type Options struct {
	// StorageDir is where baseline and diff artifacts are written.
	// Defaults to "visual_artifacts" under the working directory.
	StorageDir string

	// DefaultSensitivity is the diff-ratio threshold used when a
	// verification does not override it. Defaults to 0.05.
	DefaultSensitivity float64

	// BaselineCacheSize bounds the in-memory baseline cache. Evicted
	// baselines are reloaded from disk on demand. Defaults to 128.
	BaselineCacheSize int
}

// NewCore creates a verification core, creating the storage directory.
func NewCore(opts Options) (*Core, error) {
	storageDir := opts.StorageDir
	if storageDir == "" {
		storageDir = "visual_artifacts"
	}
	sensitivity := opts.DefaultSensitivity
	if sensitivity == 0 {
		sensitivity = 0.05
	}
	if sensitivity < 0 || sensitivity > 1 {
		return nil, fmt.Errorf("default sensitivity %v: %w", sensitivity, ErrInvalidSensitivity)
	}
	cacheSize := opts.BaselineCacheSize
	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, err := lru.New[string, Pixels](cacheSize)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, err
	}
	return &Core{
		storageDir:         storageDir,
		defaultSensitivity: sensitivity,
		baselines:          cache,
	}, nil
}

// DefaultSensitivity returns the core's default diff threshold.
func (c *Core) DefaultSensitivity() float64 {
	return c.defaultSensitivity
}

// Verify compares the capture against the screen's baseline. The first
// capture for a screen becomes its baseline. A sensitivity < 0 means "use
// the default".
func (c *Core) Verify(screenID string, image Pixels, sensitivity float64) (Result, error) {
	if sensitivity < 0 {
		sensitivity = c.defaultSensitivity
	}
	if sensitivity > 1 {
		return Result{}, fmt.Errorf("sensitivity %v: %w", sensitivity, ErrInvalidSensitivity)
	}

	pixels := clonePixels(image)
	baseline, ok, err := c.loadBaseline(screenID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		path := c.baselinePath(screenID)
		if err := writeMatrix(path, pixels); err != nil {
			return Result{}, err
		}
		c.baselines.Add(screenID, pixels)
		return Result{
			ScreenID:     screenID,
			Status:       StatusBaselineCreated,
			DiffRatio:    0,
			Sensitivity:  sensitivity,
			BaselinePath: path,
			RemediationSuggestions: []string{
				"Baseline created for future comparisons.",
			},
		}, nil
	}

	diffRatio, diffMap, err := computeDiff(baseline, pixels)
	if err != nil {
		return Result{}, err
	}
	diffPath := c.diffPath(screenID)
	if err := writeMatrix(diffPath, diffMap); err != nil {
		return Result{}, err
	}

	status := StatusPass
	if diffRatio > sensitivity {
		status = StatusFail
	}
	return Result{
		ScreenID:               screenID,
		Status:                 status,
		DiffRatio:              diffRatio,
		Sensitivity:            sensitivity,
		BaselinePath:           c.baselinePath(screenID),
		DiffPath:               diffPath,
		RemediationSuggestions: buildSuggestions(status, diffRatio, sensitivity),
	}, nil
}

// loadBaseline checks the cache, then disk. The bool reports existence.
func (c *Core) loadBaseline(screenID string) (Pixels, bool, error) {
	if baseline, ok := c.baselines.Get(screenID); ok {
		return baseline, true, nil
	}
	path := c.baselinePath(screenID)
	baseline, err := readMatrix(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	c.baselines.Add(screenID, baseline)
	return baseline, true, nil
}

func buildSuggestions(status string, diffRatio, sensitivity float64) []string {
	if status == StatusPass {
		return []string{"Visual comparison within sensitivity threshold."}
	}
	suggestions := []string{
		fmt.Sprintf("Visual deviation of %.3f exceeds sensitivity %.3f. Review UI changes.", diffRatio, sensitivity),
	}
	if diffRatio < 0.5 {
		suggestions = append(suggestions, "Consider updating baseline if the change is expected.")
	} else {
		suggestions = append(suggestions, "Large deviation detected. Investigate asset loading or layout regressions.")
	}
	return suggestions
}

// computeDiff returns the normalized total pixel deviation and the per-pixel
// delta map.
func computeDiff(baseline, image Pixels) (float64, Pixels, error) {
	if len(baseline) != len(image) {
		return 0, nil, ErrDimensionMismatch
	}
	for i := range baseline {
		if len(baseline[i]) != len(image[i]) {
			return 0, nil, ErrDimensionMismatch
		}
	}

	totalDiff := 0
	maxPossible := 0
	diffMap := make(Pixels, len(baseline))
	for i := range baseline {
		diffRow := make([]int, len(baseline[i]))
		for j := range baseline[i] {
			basePixel := baseline[i][j]
			newPixel := image[i][j]
			if basePixel < 0 || basePixel > 255 || newPixel < 0 || newPixel > 255 {
				return 0, nil, ErrPixelOutOfRange
			}
			delta := basePixel - newPixel
			if delta < 0 {
				delta = -delta
			}
			diffRow[j] = delta
			totalDiff += delta
			maxPossible += 255
		}
		diffMap[i] = diffRow
	}

	if maxPossible == 0 {
		return 0, diffMap, nil
	}
	return float64(totalDiff) / float64(maxPossible), diffMap, nil
}

func clonePixels(image Pixels) Pixels {
	cloned := make(Pixels, len(image))
	for i, row := range image {
		cloned[i] = append([]int(nil), row...)
	}
	return cloned
}

func (c *Core) baselinePath(screenID string) string {
	return filepath.Join(c.storageDir, screenID+"_baseline.txt")
}

func (c *Core) diffPath(screenID string) string {
	return filepath.Join(c.storageDir, fmt.Sprintf("%s_diff_%s.txt", screenID, strings.ReplaceAll(uuid.NewString(), "-", "")))
}

func writeMatrix(path string, matrix Pixels) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var sb strings.Builder
	for _, row := range matrix {
		for j, value := range row {
			if j > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(strconv.Itoa(value))
		}
		sb.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

func readMatrix(path string) (Pixels, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var matrix Pixels
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		row := make([]int, 0, len(fields))
		for _, field := range fields {
			value, err := strconv.Atoi(field)
			if err != nil {
				return nil, fmt.Errorf("corrupt matrix file %s: %w", path, err)
			}
			row = append(row, value)
		}
		matrix = append(matrix, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return matrix, nil
}
