package database

import (
	"time"
)

// Title is one catalogued ROM file.
type Title struct {
	RomPath        string    `json:"rom_path"`
	TitleID        string    `json:"title_id"`
	Format         string    `json:"format"`
	Name           string    `json:"name"`
	Publisher      string    `json:"publisher"`
	Version        string    `json:"version"`
	Icon           []byte    `json:"-"`
	HasIcon        bool      `json:"has_icon"`
	PromptsForUser bool      `json:"prompts_for_user"`
	FileSize       int64     `json:"file_size"`
	ScanID         string    `json:"scan_id"`
	ScannedAt      time.Time `json:"scanned_at"`
}

// ScanFailure is a ROM that could not be parsed.
type ScanFailure struct {
	RomPath  string    `json:"rom_path"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	ScanID   string    `json:"scan_id"`
	FailedAt time.Time `json:"failed_at"`
}

// ScanRun summarizes one folder scan.
type ScanRun struct {
	ID         string     `json:"id"`
	RomsDir    string     `json:"roms_dir"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Scanned    int        `json:"scanned"`
	Failed     int        `json:"failed"`
}
