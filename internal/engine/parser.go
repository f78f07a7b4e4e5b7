package engine

import (
	"path"
	"strings"

	"github.com/edvin/backhaul/internal/model"
)

// FileChange is one per-file event parsed from rsync's itemized output.
type FileChange struct {
	Name   string
	Path   string
	Size   *int64
	Action string
	Reason string
}

// Parser incrementally classifies rsync output lines into per-file change
// records and the end-of-transfer statistics block. It is driven with the
// --itemize-changes --stats --out-format=%i|%n|%l flag set, so file events
// arrive as `<itemized-flags>|<path>|<length>`. Lines it cannot make sense
// of are skipped: a parse failure must never interrupt the transfer.
type Parser struct {
	stats     model.RsyncStats
	statsSeen bool
}

func NewParser() *Parser {
	return &Parser{}
}

// Stats returns the aggregate once any statistics line has been seen.
func (p *Parser) Stats() (*model.RsyncStats, bool) {
	if !p.statsSeen {
		return nil, false
	}
	s := p.stats
	return &s, true
}

// ParseLine consumes one stdout line. It returns a per-file record for
// itemized-change lines and nil for everything else (statistics lines are
// absorbed into the aggregate; unknown lines are dropped).
func (p *Parser) ParseLine(line string) *FileChange {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil
	}

	if strings.Contains(line, "|") {
		return p.parseItemized(line)
	}

	p.parseStatsLine(line)
	return nil
}

func (p *Parser) parseItemized(line string) *FileChange {
	parts := strings.SplitN(line, "|", 3)
	if len(parts) != 3 {
		return nil
	}
	item := strings.TrimSpace(parts[0])
	filePath := parts[1]
	if filePath == "" || filePath == "." || filePath == "./" {
		return nil
	}

	var size *int64
	if n, err := parseGroupedInt(parts[2]); err == nil {
		size = &n
	}

	fc := &FileChange{
		Name: path.Base(strings.TrimRight(filePath, "/")),
		Path: filePath,
		Size: size,
	}

	switch {
	case strings.HasPrefix(item, "*deleting"):
		fc.Action = model.ActionDelete
		fc.Reason = "removed at destination"
	case strings.HasPrefix(item, "*"):
		// Other informational messages carry no file event.
		return nil
	case len(item) >= 2 && (item[0] == '>' || item[0] == '<' || item[0] == 'c' || item[0] == 'h'):
		fc.Action = model.ActionCopy
		fc.Reason = copyReason(item)
	case len(item) >= 2 && item[0] == '.':
		fc.Action = model.ActionIgnored
		fc.Reason = ignoreReason(item)
	default:
		return nil
	}

	return fc
}

// copyReason derives the short human explanation from the itemize flags.
// Layout: update-type, file-type, then c s t p o g u a x.
func copyReason(item string) string {
	if strings.ContainsRune(item, '+') {
		return "newly created"
	}
	flags := item[2:]
	for i, r := range flags {
		switch {
		case i == 0 && r == 'c':
			return "checksum differs"
		case i == 1 && r == 's':
			return "size differs"
		case i == 2 && (r == 't' || r == 'T'):
			return "times differ"
		}
	}
	return "content differs"
}

func ignoreReason(item string) string {
	for _, r := range item[2:] {
		if r != ' ' && r != '.' {
			return "attributes updated"
		}
	}
	return "identical"
}

// parseStatsLine absorbs one line of the --stats block, tolerating both
// thousands-grouped integers and comma-decimal floats.
func (p *Parser) parseStatsLine(line string) {
	trimmed := strings.TrimSpace(line)

	if v, rest, ok := statValue(trimmed, "Number of files:"); ok {
		p.setInt(&p.stats.TotalFiles, v)
		p.parseFileBreakdown(rest)
		return
	}
	if v, _, ok := statValue(trimmed, "Number of created files:"); ok {
		p.setInt(&p.stats.CreatedFiles, v)
		return
	}
	if v, _, ok := statValue(trimmed, "Number of deleted files:"); ok {
		p.setInt(&p.stats.DeletedFiles, v)
		return
	}
	if v, _, ok := statValue(trimmed, "Number of regular files transferred:"); ok {
		p.setInt(&p.stats.TransferredFiles, v)
		return
	}
	// Older rsync omits "regular".
	if v, _, ok := statValue(trimmed, "Number of files transferred:"); ok {
		p.setInt(&p.stats.TransferredFiles, v)
		return
	}
	if v, _, ok := statValue(trimmed, "Total file size:"); ok {
		p.setInt(&p.stats.TotalFileSize, v)
		return
	}
	if v, _, ok := statValue(trimmed, "Total transferred file size:"); ok {
		p.setInt(&p.stats.TotalTransferredSize, v)
		return
	}
	if v, _, ok := statValue(trimmed, "Literal data:"); ok {
		p.setInt(&p.stats.LiteralData, v)
		return
	}
	if v, _, ok := statValue(trimmed, "Matched data:"); ok {
		p.setInt(&p.stats.MatchedData, v)
		return
	}
	if v, _, ok := statValue(trimmed, "File list size:"); ok {
		p.setInt(&p.stats.FileListSize, v)
		return
	}
	if v, _, ok := statValue(trimmed, "File list generation time:"); ok {
		p.setFloat(&p.stats.FileListGenSeconds, v)
		return
	}
	if v, _, ok := statValue(trimmed, "File list transfer time:"); ok {
		p.setFloat(&p.stats.FileListTransferSeconds, v)
		return
	}
	if v, _, ok := statValue(trimmed, "Total bytes sent:"); ok {
		p.setInt(&p.stats.BytesSent, v)
		return
	}
	if v, _, ok := statValue(trimmed, "Total bytes received:"); ok {
		p.setInt(&p.stats.BytesReceived, v)
		return
	}
	p.parseSummaryLine(trimmed)
}

// statValue matches a "Key: value ..." line and returns the first numeric
// token plus whatever follows it.
func statValue(line, prefix string) (string, string, bool) {
	if !strings.HasPrefix(line, prefix) {
		return "", "", false
	}
	rest := strings.TrimSpace(line[len(prefix):])
	if rest == "" {
		return "", "", false
	}
	fields := strings.Fields(rest)
	return fields[0], strings.TrimSpace(rest[len(fields[0]):]), true
}

// parseFileBreakdown reads the "(reg: N, dir: M)" suffix of the file count.
func (p *Parser) parseFileBreakdown(rest string) {
	rest = strings.Trim(rest, "()")
	for _, part := range strings.Split(rest, ",") {
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		n, err := parseGroupedInt(value)
		if err != nil {
			continue
		}
		switch strings.TrimSpace(key) {
		case "reg":
			p.stats.RegularFiles = n
		case "dir":
			p.stats.Directories = n
		}
	}
}

// parseSummaryLine reads the closing two lines rsync prints after the
// stats block:
//
//	sent 456 bytes  received 789 bytes  831.33 bytes/sec
//	total size is 1,234,567  speedup is 1.000,00
func (p *Parser) parseSummaryLine(line string) {
	fields := strings.Fields(line)

	switch {
	case len(fields) >= 7 && fields[0] == "sent" && fields[3] == "received":
		p.setInt(&p.stats.BytesSent, fields[1])
		p.setInt(&p.stats.BytesReceived, fields[4])
		p.setFloat(&p.stats.TransferRate, fields[6])
	case len(fields) >= 7 && fields[0] == "total" && fields[1] == "size":
		p.setInt(&p.stats.TotalFileSize, fields[3])
		p.setFloat(&p.stats.Speedup, fields[6])
	}
}

func (p *Parser) setInt(dst *int64, raw string) {
	n, err := parseGroupedInt(raw)
	if err != nil {
		return
	}
	*dst = n
	p.statsSeen = true
}

func (p *Parser) setFloat(dst *float64, raw string) {
	f, err := parseDecimal(raw)
	if err != nil {
		return
	}
	*dst = f
	p.statsSeen = true
}
