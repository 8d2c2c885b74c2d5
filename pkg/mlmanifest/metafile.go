package mlmanifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/virtengine/mlpipe/pkg/mlsemver"
)

// Workspace meta files are INI-like: no ecosystem library in the surveyed
// dependency pack parses this shape (the pack's config loaders are
// viper/yaml, not INI), so this is a small hand-rolled reader/writer
// justified in the repository's design notes.

const (
	sectionIdentifier    = "identifier"
	sectionDatasets      = "datasets"
	sectionPaths         = "paths"
	sectionConfiguration = "configuration"
	sectionReference     = "reference"
)

// ParseMetaFile parses the INI-like workspace meta file format.
func ParseMetaFile(data []byte) (*Workspace, error) {
	sections, err := parseINI(data)
	if err != nil {
		return nil, err
	}

	ws := &Workspace{
		Datasets: make(map[DatasetRole]mlsemver.MetaKey),
		Outputs:  make(map[string]string),
		Params:   make(map[string]string),
	}

	identifier := sections[sectionIdentifier]
	keyStr, ok := identifier["key"]
	if !ok {
		return nil, ErrMetaFileParse.Wrap("missing [identifier] key")
	}
	key, err := mlsemver.ParseMetaKey(keyStr)
	if err != nil {
		return nil, ErrMetaFileParse.Wrapf("invalid identifier key: %v", err)
	}
	ws.Key = key

	if ts, ok := identifier["created_timestamp"]; ok && ts != "" {
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, ErrMetaFileParse.Wrapf("invalid created_timestamp: %v", err)
		}
		ws.CreatedTimestamp = parsed
	}

	for role, value := range sections[sectionDatasets] {
		dk, err := mlsemver.ParseMetaKey(value)
		if err != nil {
			return nil, ErrMetaFileParse.Wrapf("invalid dataset entry %q: %v", role, err)
		}
		ws.Datasets[DatasetRole(role)] = dk
	}

	paths := sections[sectionPaths]
	ws.Paths = WorkspacePaths{
		Base:   paths["base"],
		Venv:   paths["venv"],
		Temp:   paths["temp"],
		Output: paths["output"],
	}

	ref := sections[sectionReference]
	if pipelineJSON, ok := ref["pipeline"]; ok && pipelineJSON != "" {
		var stringified []string
		if err := json.Unmarshal([]byte(pipelineJSON), &stringified); err != nil {
			return nil, ErrMetaFileParse.Wrapf("invalid reference.pipeline: %v", err)
		}
		ws.Pipeline = make([]mlsemver.MetaKey, 0, len(stringified))
		for _, s := range stringified {
			mk, err := mlsemver.ParseMetaKey(s)
			if err != nil {
				return nil, ErrMetaFileParse.Wrapf("invalid pipeline entry %q: %v", s, err)
			}
			ws.Pipeline = append(ws.Pipeline, mk)
		}
	}
	if paramsJSON, ok := ref["params"]; ok && paramsJSON != "" {
		if err := json.Unmarshal([]byte(paramsJSON), &ws.Params); err != nil {
			return nil, ErrMetaFileParse.Wrapf("invalid reference.params: %v", err)
		}
	}
	if outputJSON, ok := ref["output"]; ok && outputJSON != "" {
		if err := json.Unmarshal([]byte(outputJSON), &ws.Outputs); err != nil {
			return nil, ErrMetaFileParse.Wrapf("invalid reference.output: %v", err)
		}
	}

	return ws, nil
}

// WriteMetaFile renders a Workspace as the INI-like meta file format.
func (w *Workspace) WriteMetaFile() ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "[%s]\n", sectionIdentifier)
	fmt.Fprintf(&buf, "key = %s\n", w.Key.VersionedString())
	if !w.CreatedTimestamp.IsZero() {
		fmt.Fprintf(&buf, "created_timestamp = %s\n", w.CreatedTimestamp.UTC().Format(time.RFC3339))
	}
	buf.WriteString("\n")

	fmt.Fprintf(&buf, "[%s]\n", sectionDatasets)
	roles := make([]string, 0, len(w.Datasets))
	for role := range w.Datasets {
		roles = append(roles, string(role))
	}
	sort.Strings(roles)
	for _, role := range roles {
		fmt.Fprintf(&buf, "%s = %s\n", role, w.Datasets[DatasetRole(role)].VersionedString())
	}
	buf.WriteString("\n")

	fmt.Fprintf(&buf, "[%s]\n", sectionPaths)
	fmt.Fprintf(&buf, "base = %s\n", w.Paths.Base)
	fmt.Fprintf(&buf, "venv = %s\n", w.Paths.Venv)
	fmt.Fprintf(&buf, "temp = %s\n", w.Paths.Temp)
	fmt.Fprintf(&buf, "output = %s\n", w.Paths.Output)
	buf.WriteString("\n")

	fmt.Fprintf(&buf, "[%s]\n", sectionConfiguration)
	buf.WriteString("\n")

	fmt.Fprintf(&buf, "[%s]\n", sectionReference)
	pipelineStrs := make([]string, 0, len(w.Pipeline))
	for _, k := range w.Pipeline {
		pipelineStrs = append(pipelineStrs, k.VersionedString())
	}
	pipelineJSON, err := json.Marshal(pipelineStrs)
	if err != nil {
		return nil, ErrMetaFileParse.Wrapf("encode pipeline: %v", err)
	}
	fmt.Fprintf(&buf, "pipeline = %s\n", pipelineJSON)

	paramsJSON, err := json.Marshal(w.Params)
	if err != nil {
		return nil, ErrMetaFileParse.Wrapf("encode params: %v", err)
	}
	fmt.Fprintf(&buf, "params = %s\n", paramsJSON)

	outputJSON, err := json.Marshal(w.Outputs)
	if err != nil {
		return nil, ErrMetaFileParse.Wrapf("encode output: %v", err)
	}
	fmt.Fprintf(&buf, "output = %s\n", outputJSON)

	return buf.Bytes(), nil
}

func parseINI(data []byte) (map[string]map[string]string, error) {
	sections := map[string]map[string]string{
		sectionIdentifier:    {},
		sectionDatasets:      {},
		sectionPaths:         {},
		sectionConfiguration: {},
		sectionReference:     {},
	}

	current := ""
	lines := strings.Split(string(data), "\n")
	for lineNo, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			current = strings.TrimSpace(line[1 : len(line)-1])
			if _, ok := sections[current]; !ok {
				sections[current] = map[string]string{}
			}
			continue
		}
		if current == "" {
			return nil, ErrMetaFileParse.Wrapf("line %d: key outside any section", lineNo+1)
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			return nil, ErrMetaFileParse.Wrapf("line %d: missing '='", lineNo+1)
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		sections[current][key] = value
	}
	return sections, nil
}
