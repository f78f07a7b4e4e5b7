package model

import (
	"fmt"
	"strconv"
	"strings"
)

// RsyncStats is the aggregate produced by rsync's end-of-transfer statistics
// block, plus the elapsed wall time measured by the engine.
type RsyncStats struct {
	TotalFiles              int64   `json:"total_files"`
	RegularFiles            int64   `json:"regular_files"`
	Directories             int64   `json:"directories"`
	CreatedFiles            int64   `json:"created_files"`
	DeletedFiles            int64   `json:"deleted_files"`
	TransferredFiles        int64   `json:"transferred_files"`
	TotalFileSize           int64   `json:"total_file_size"`
	TotalTransferredSize    int64   `json:"total_transferred_size"`
	LiteralData             int64   `json:"literal_data"`
	MatchedData             int64   `json:"matched_data"`
	FileListSize            int64   `json:"file_list_size"`
	FileListGenSeconds      float64 `json:"file_list_gen_seconds"`
	FileListTransferSeconds float64 `json:"file_list_transfer_seconds"`
	BytesSent               int64   `json:"bytes_sent"`
	BytesReceived           int64   `json:"bytes_received"`
	TransferRate            float64 `json:"transfer_rate"`
	Speedup                 float64 `json:"speedup"`
	ElapsedSeconds          float64 `json:"elapsed_seconds"`
}

// statFields maps the wire keys of the rsync-stats sentinel reason. Order is
// fixed so the encoded reason is stable across runs.
var statFields = []string{
	"TotalFiles", "RegularFiles", "Directories", "CreatedFiles",
	"DeletedFiles", "TransferredFiles", "TotalFileSize",
	"TotalTransferredSize", "LiteralData", "MatchedData", "FileListSize",
	"FileListGenSeconds", "FileListTransferSeconds", "BytesSent",
	"BytesReceived", "TransferRate", "Speedup", "ElapsedSeconds",
}

// EncodeReason renders the stats as the |-delimited Key:Value string stored
// in the reason column of the rsync-stats sentinel.
func (s *RsyncStats) EncodeReason() string {
	values := map[string]string{
		"TotalFiles":              strconv.FormatInt(s.TotalFiles, 10),
		"RegularFiles":            strconv.FormatInt(s.RegularFiles, 10),
		"Directories":             strconv.FormatInt(s.Directories, 10),
		"CreatedFiles":            strconv.FormatInt(s.CreatedFiles, 10),
		"DeletedFiles":            strconv.FormatInt(s.DeletedFiles, 10),
		"TransferredFiles":        strconv.FormatInt(s.TransferredFiles, 10),
		"TotalFileSize":           strconv.FormatInt(s.TotalFileSize, 10),
		"TotalTransferredSize":    strconv.FormatInt(s.TotalTransferredSize, 10),
		"LiteralData":             strconv.FormatInt(s.LiteralData, 10),
		"MatchedData":             strconv.FormatInt(s.MatchedData, 10),
		"FileListSize":            strconv.FormatInt(s.FileListSize, 10),
		"FileListGenSeconds":      strconv.FormatFloat(s.FileListGenSeconds, 'f', -1, 64),
		"FileListTransferSeconds": strconv.FormatFloat(s.FileListTransferSeconds, 'f', -1, 64),
		"BytesSent":               strconv.FormatInt(s.BytesSent, 10),
		"BytesReceived":           strconv.FormatInt(s.BytesReceived, 10),
		"TransferRate":            strconv.FormatFloat(s.TransferRate, 'f', -1, 64),
		"Speedup":                 strconv.FormatFloat(s.Speedup, 'f', -1, 64),
		"ElapsedSeconds":          strconv.FormatFloat(s.ElapsedSeconds, 'f', -1, 64),
	}

	parts := make([]string, 0, len(statFields))
	for _, key := range statFields {
		parts = append(parts, key+":"+values[key])
	}
	return strings.Join(parts, "|")
}

// ParseStatsReason decodes the reason column of a rsync-stats sentinel.
// Unknown keys are ignored so older rows keep parsing.
func ParseStatsReason(reason string) (*RsyncStats, error) {
	s := &RsyncStats{}
	for _, part := range strings.Split(reason, "|") {
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("malformed stats field %q", part)
		}
		if err := s.setField(key, value); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *RsyncStats) setField(key, value string) error {
	intFields := map[string]*int64{
		"TotalFiles":           &s.TotalFiles,
		"RegularFiles":         &s.RegularFiles,
		"Directories":          &s.Directories,
		"CreatedFiles":         &s.CreatedFiles,
		"DeletedFiles":         &s.DeletedFiles,
		"TransferredFiles":     &s.TransferredFiles,
		"TotalFileSize":        &s.TotalFileSize,
		"TotalTransferredSize": &s.TotalTransferredSize,
		"LiteralData":          &s.LiteralData,
		"MatchedData":          &s.MatchedData,
		"FileListSize":         &s.FileListSize,
		"BytesSent":            &s.BytesSent,
		"BytesReceived":        &s.BytesReceived,
	}
	if dst, ok := intFields[key]; ok {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("parse stats field %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	floatFields := map[string]*float64{
		"FileListGenSeconds":      &s.FileListGenSeconds,
		"FileListTransferSeconds": &s.FileListTransferSeconds,
		"TransferRate":            &s.TransferRate,
		"Speedup":                 &s.Speedup,
		"ElapsedSeconds":          &s.ElapsedSeconds,
	}
	if dst, ok := floatFields[key]; ok {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("parse stats field %s: %w", key, err)
		}
		*dst = f
		return nil
	}

	// Unknown key: tolerate, the encoding may grow.
	return nil
}
