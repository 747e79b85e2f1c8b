package catalog

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fitsalign/internal/star"
)

// Column names recognised in SExtractor headers, in order of preference.
var (
	sexX     = []string{"X_IMAGE", "XWIN_IMAGE", "X"}
	sexY     = []string{"Y_IMAGE", "YWIN_IMAGE", "Y"}
	sexFlux  = []string{"FLUX_AUTO", "FLUX_BEST", "FLUX_ISO", "FLUX"}
	sexFlags = []string{"FLAGS", "FLAG"}
)

type columns struct {
	x, y, flux, flag int
}

// defaultColumns is used for headerless catalogs: x y flux [flag].
var defaultColumns = columns{x: 0, y: 1, flux: 2, flag: 3}

// ReadSExtractor parses an ASCII_HEAD catalog written by SExtractor. Header
// lines have the form "# <column> <NAME> [description]" with 1-based
// column numbers. A catalog without header is read as x y flux [flag].
func ReadSExtractor(r io.Reader) ([]star.Star, error) {
	header := map[string]int{}
	var stars []star.Star
	var cols *columns

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			fields := strings.Fields(strings.TrimPrefix(line, "#"))
			if len(fields) >= 2 {
				if n, err := strconv.Atoi(fields[0]); err == nil && n > 0 {
					header[strings.ToUpper(fields[1])] = n - 1
				}
			}
			continue
		}

		if cols == nil {
			c, err := sextractorColumns(header)
			if err != nil {
				return nil, err
			}
			cols = &c
		}

		fields := strings.Fields(line)
		s, err := parseRow(fields, *cols, len(stars))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		stars = append(stars, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading catalog: %w", err)
	}
	return stars, nil
}

func sextractorColumns(header map[string]int) (columns, error) {
	if len(header) == 0 {
		return defaultColumns, nil
	}
	pick := func(names []string) int {
		for _, n := range names {
			if i, ok := header[n]; ok {
				return i
			}
		}
		return -1
	}
	c := columns{x: pick(sexX), y: pick(sexY), flux: pick(sexFlux), flag: pick(sexFlags)}
	if c.x < 0 || c.y < 0 || c.flux < 0 {
		return columns{}, errors.New("catalog header lacks position or flux columns")
	}
	return c, nil
}

func parseRow(fields []string, c columns, id int) (star.Star, error) {
	get := func(i int) (float64, error) {
		if i >= len(fields) {
			return 0, fmt.Errorf("missing column %d", i+1)
		}
		return strconv.ParseFloat(fields[i], 64)
	}
	x, err := get(c.x)
	if err != nil {
		return star.Star{}, err
	}
	y, err := get(c.y)
	if err != nil {
		return star.Star{}, err
	}
	flux, err := get(c.flux)
	if err != nil {
		return star.Star{}, err
	}
	flag := 0
	if c.flag >= 0 && c.flag < len(fields) {
		f, err := strconv.ParseFloat(fields[c.flag], 64)
		if err != nil {
			return star.Star{}, err
		}
		flag = int(f)
	}
	return star.Star{ID: id, X: x, Y: y, Flux: flux, Flag: flag}, nil
}

// ReadCSV parses a CSV catalog whose header row names the x, y, flux and
// optional flag columns.
func ReadCSV(r io.Reader) ([]star.Star, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	head, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	c := columns{x: -1, y: -1, flux: -1, flag: -1}
	for i, name := range head {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "x", "x_image":
			c.x = i
		case "y", "y_image":
			c.y = i
		case "flux", "flux_auto":
			c.flux = i
		case "flag", "flags":
			c.flag = i
		}
	}
	if c.x < 0 || c.y < 0 || c.flux < 0 {
		return nil, errors.New("csv header must name x, y and flux columns")
	}

	var stars []star.Star
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		s, err := parseRow(rec, c, len(stars))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(stars)+1, err)
		}
		stars = append(stars, s)
	}
	return stars, nil
}

// ReadJSONL parses one JSON Record per line.
func ReadJSONL(r io.Reader) ([]star.Star, error) {
	var stars []star.Star
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse JSON at line %d: %w", lineNum, err)
		}
		stars = append(stars, rec.star(len(stars)))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading catalog: %w", err)
	}
	return stars, nil
}
