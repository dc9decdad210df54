package builders

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aristath/bob/internal/builder"
	"github.com/aristath/bob/internal/resource"
)

// ArchiveMagic starts every archive written by Archive.
const ArchiveMagic = "ARCD"

// ArchiveDescriptor registers Archive for .arc files. Its create order puts
// it after every ordinary builder, so the tasks it collects already exist.
var ArchiveDescriptor = builder.Descriptor{
	Name:        "archive",
	OutExt:      ".arcd",
	InExts:      []string{".arc"},
	CreateOrder: 1000,
}

// Archive is a collector: an .arc file lists glob patterns over the project
// sources, and the archive packs the build output of every match. Sources
// without a builder are packed as they are.
type Archive struct {
	builder.Base
}

// NewArchive is the builder.Factory for Archive.
func NewArchive(host builder.Host, desc builder.Descriptor) builder.Builder {
	return &Archive{Base: builder.NewBase(host, desc)}
}

// archiveEntry maps an archived resource to the source it came from.
type archiveEntry struct {
	Name     string
	Resource resource.Resource
}

func (a *Archive) Create(input resource.Resource) (*builder.Task, error) {
	data, err := input.Content()
	if err != nil {
		return nil, &builder.ConfigError{Resource: input, Err: err}
	}

	patterns, err := parsePatterns(data)
	if err != nil {
		return nil, &builder.ConfigError{Resource: input, Err: err}
	}

	task := &builder.Task{Name: a.Descriptor().Name + " " + input.Path()}
	task.AddDependency(input)
	task.AddOutput(input.ChangeExt(a.Descriptor().OutExt))

	fs := a.Host().FileSystem()
	var entries []archiveEntry
	seen := make(map[string]bool)
	for _, src := range a.Host().Sources() {
		if src == input.Path() || seen[src] || !matchAny(patterns, src) {
			continue
		}
		seen[src] = true

		r := fs.Get(src)
		producer, err := a.Host().BuildResource(r)
		switch {
		case errors.Is(err, builder.ErrNoBuilder):
			task.AddInput(r)
			entries = append(entries, archiveEntry{Name: src, Resource: r})
		case err != nil:
			return nil, &builder.ConfigError{Resource: input, Err: fmt.Errorf("collecting %s: %w", src, err)}
		default:
			for _, out := range producer.Outputs {
				task.AddInput(out)
				entries = append(entries, archiveEntry{Name: out.Path(), Resource: out})
			}
		}
	}

	if len(entries) == 0 {
		a.Host().Logger().Warn("archive matches no sources", "archive", input.Path())
	}
	task.Data = entries
	return task, nil
}

func (a *Archive) Build(task *builder.Task) error {
	entries, _ := task.Data.([]archiveEntry)

	var buf bytes.Buffer
	buf.WriteString(ArchiveMagic)
	buf.Write(binary.AppendUvarint(nil, uint64(len(entries))))
	for _, e := range entries {
		content, err := e.Resource.Content()
		if err != nil {
			if errors.Is(err, resource.ErrNotFound) {
				return &builder.CompileError{Resource: e.Resource, Message: "archived file not found", Err: err}
			}
			return err
		}
		buf.Write(binary.AppendUvarint(nil, uint64(len(e.Name))))
		buf.WriteString(e.Name)
		buf.Write(binary.AppendUvarint(nil, uint64(len(content))))
		buf.Write(content)
	}

	for _, out := range task.Outputs {
		if err := out.SetContent(buf.Bytes()); err != nil {
			return fmt.Errorf("writing archive %s: %w", out.Path(), err)
		}
	}
	return nil
}

// ReadArchive decodes an archive into entry name and content pairs, in order.
func ReadArchive(data []byte) ([]string, [][]byte, error) {
	if !bytes.HasPrefix(data, []byte(ArchiveMagic)) {
		return nil, nil, errors.New("not an archive")
	}
	r := bytes.NewReader(data[len(ArchiveMagic):])

	readChunk := func() ([]byte, error) {
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		if n > uint64(r.Len()) {
			return nil, errors.New("truncated archive")
		}
		chunk := make([]byte, n)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, err
		}
		return chunk, nil
	}

	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, nil, fmt.Errorf("reading entry count: %w", err)
	}
	var names []string
	var contents [][]byte
	for i := uint64(0); i < count; i++ {
		name, err := readChunk()
		if err != nil {
			return nil, nil, fmt.Errorf("entry %d name: %w", i, err)
		}
		content, err := readChunk()
		if err != nil {
			return nil, nil, fmt.Errorf("entry %d content: %w", i, err)
		}
		names = append(names, string(name))
		contents = append(contents, content)
	}
	return names, contents, nil
}

// parsePatterns reads one glob per line. Blank lines and lines starting with
// '#' are ignored.
func parsePatterns(data []byte) ([]string, error) {
	var patterns []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "/")
		if _, err := path.Match(line, ""); err != nil {
			return nil, fmt.Errorf("line %d: pattern %q: %w", lineNo, line, err)
		}
		patterns = append(patterns, line)
	}
	return patterns, scanner.Err()
}

// matchAny matches p against each pattern. A pattern without a slash matches
// the base name in any directory.
func matchAny(patterns []string, p string) bool {
	for _, pattern := range patterns {
		target := p
		if !strings.Contains(pattern, "/") {
			target = path.Base(p)
		}
		if ok, _ := path.Match(pattern, target); ok {
			return true
		}
	}
	return false
}
