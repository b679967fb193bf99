// Package sources reads organization descriptor lists from heterogeneous
// upstream sources: local CSV and JSON files, remote JSON feeds, and
// spreadsheet-exported CSV.
package sources

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Descriptor is one organization's raw field mapping as supplied by a source.
type Descriptor map[string]string

type Reader struct {
	httpClient *http.Client
	userAgent  string
}

func NewReader(httpClient *http.Client, userAgent string) *Reader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Reader{httpClient: httpClient, userAgent: userAgent}
}

// Load reads the sources file (one path or URL per line) and aggregates the
// descriptors of every recognized source. Unrecognized source lines are
// skipped; an empty sources file yields an empty list, not an error.
func (r *Reader) Load(sourcesPath string) ([]Descriptor, error) {
	data, err := os.ReadFile(sourcesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var all []Descriptor
	for _, line := range strings.Split(string(data), "\n") {
		source := strings.TrimSpace(line)
		if source == "" {
			continue
		}

		descriptors, err := r.loadSource(source)
		if err != nil {
			return nil, fmt.Errorf("failed to load source %s: %w", source, err)
		}
		all = append(all, descriptors...)
	}

	return all, nil
}

// ReadSource loads one descriptor source by path or URL. It backs both the
// organization list and per-organization project lists.
func (r *Reader) ReadSource(source string) ([]Descriptor, error) {
	return r.loadSource(source)
}

func (r *Reader) loadSource(source string) ([]Descriptor, error) {
	parsed, err := url.Parse(source)
	if err != nil {
		slog.Debug("Skipping unparseable source", "source", source)
		return nil, nil
	}

	isJSON := path.Ext(parsed.Path) == ".json"

	switch {
	case parsed.Scheme == "" && parsed.Host == "":
		if isJSON {
			return r.loadLocalJSON(source)
		}
		return r.loadLocalCSV(source)
	case isJSON:
		return r.loadRemoteJSON(source)
	case strings.Contains(parsed.Host, "docs.google.com"), path.Ext(parsed.Path) == ".csv":
		return r.loadSpreadsheet(source)
	default:
		slog.Debug("Skipping unrecognized source type", "source", source)
		return nil, nil
	}
}

func (r *Reader) loadLocalJSON(source string) ([]Descriptor, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return parseJSONDescriptors(data)
}

func (r *Reader) loadLocalCSV(source string) ([]Descriptor, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return parseCSVDescriptors(decodeRawBytes(data))
}

func (r *Reader) loadRemoteJSON(source string) ([]Descriptor, error) {
	data, err := r.fetch(source)
	if err != nil {
		return nil, err
	}
	return parseJSONDescriptors(data)
}

// loadSpreadsheet fetches a spreadsheet-exported CSV. The export's encoding
// cannot be trusted to match its Content-Type, so the raw bytes are
// re-decoded explicitly rather than relying on the transport.
func (r *Reader) loadSpreadsheet(source string) ([]Descriptor, error) {
	data, err := r.fetch(source)
	if err != nil {
		return nil, err
	}
	return parseCSVDescriptors(decodeRawBytes(data))
}

func (r *Reader) fetch(source string) ([]byte, error) {
	req, err := http.NewRequest("GET", source, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}

// decodeRawBytes strips a UTF-8 BOM and re-decodes the bytes as UTF-8,
// falling back to Windows-1252 when the bytes are not valid UTF-8.
func decodeRawBytes(raw []byte) []byte {
	stripped, _, err := transform.Bytes(unicode.UTF8BOM.NewDecoder(), raw)
	if err == nil {
		raw = stripped
	}

	if utf8.Valid(raw) {
		return raw
	}

	decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), raw)
	if err != nil {
		return raw
	}
	return decoded
}

func parseCSVDescriptors(data []byte) ([]Descriptor, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	// Spreadsheet headers arrive in whatever casing the sheet's author
	// used; keys are lowercased so lookups stay case-insensitive.
	header := records[0]
	descriptors := make([]Descriptor, 0, len(records)-1)
	for _, record := range records[1:] {
		descriptor := make(Descriptor, len(header))
		for i, key := range header {
			if i < len(record) {
				descriptor[strings.ToLower(key)] = record[i]
			}
		}
		descriptors = append(descriptors, descriptor)
	}

	return descriptors, nil
}

// parseJSONDescriptors reads a JSON array of descriptor objects. A bare URL
// string in place of an object is accepted as a project list entry carrying
// only the code location.
func parseJSONDescriptors(data []byte) ([]Descriptor, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	descriptors := make([]Descriptor, 0, len(raw))
	for _, entry := range raw {
		var fields map[string]any
		if err := json.Unmarshal(entry, &fields); err == nil {
			descriptor := make(Descriptor, len(fields))
			for key, value := range fields {
				descriptor[key] = stringifyValue(value)
			}
			descriptors = append(descriptors, descriptor)
			continue
		}

		var bare string
		if err := json.Unmarshal(entry, &bare); err == nil {
			descriptors = append(descriptors, Descriptor{"code_url": bare})
			continue
		}

		return nil, fmt.Errorf("failed to parse JSON: entry is neither an object nor a string")
	}

	return descriptors, nil
}

func stringifyValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}
