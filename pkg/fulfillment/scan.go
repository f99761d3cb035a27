package fulfillment

import (
	"strconv"
	"strings"
	"time"
)

// MatchRule records which rule resolved a scan code.
type MatchRule string

const (
	MatchUnitID       MatchRule = "unit_id"
	MatchPosition     MatchRule = "position"
	MatchManifestCode MatchRule = "manifest_code"
)

// ScanResult describes an accepted scan.
type ScanResult struct {
	ChecklistID   string    `json:"checklist_id"`
	WorkspaceID   string    `json:"workspace_id"`
	MatchedUnitID string    `json:"matched_unit_id"`
	ManifestCode  string    `json:"manifest_code"`
	Rule          MatchRule `json:"rule"`
	Status        string    `json:"status"`
	Progress
}

// Match locates the item a scan code refers to. Rules are tried in order and the
// first hit wins: exact unit id, then display position, then manifest code
// (only for codes carrying ManifestCodePrefix).
func (c *Checklist) Match(code string) (int, MatchRule, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return -1, "", false
	}

	if i := c.indexOfUnit(code); i >= 0 {
		return i, MatchUnitID, true
	}

	if n, err := strconv.Atoi(code); err == nil && strconv.Itoa(n) == code {
		for i := range c.Items {
			if c.Items[i].Position == n {
				return i, MatchPosition, true
			}
		}
	}

	if strings.HasPrefix(code, ManifestCodePrefix) {
		for i := range c.Items {
			if c.Items[i].ManifestCode == code {
				return i, MatchManifestCode, true
			}
		}
	}

	return -1, "", false
}

// Scan reconciles one decoded scan code against the checklist.
// Rejections (NotScanning, UnknownCode, DuplicateScan) leave the checklist untouched.
func (c *Checklist) Scan(code, actorID string, at time.Time) (*ScanResult, error) {
	if !c.Status.Scanning() {
		return nil, newError(KindNotScanning, string(ActionScan), "checklist %s is %s", c.ID, c.Status)
	}

	i, rule, ok := c.Match(code)
	if !ok {
		return nil, newError(KindUnknownCode, string(ActionScan), "code %q is not in manifest", code)
	}

	item := &c.Items[i]
	if item.Scanned {
		return nil, newError(KindDuplicateScan, string(ActionScan), "unit %s already scanned", item.UnitID)
	}

	item.Scanned = true
	item.ScannedAtMs = at.UnixMilli()
	item.ScannedBy = actorID

	return &ScanResult{
		ChecklistID:   c.ID,
		WorkspaceID:   c.WorkspaceID,
		MatchedUnitID: item.UnitID,
		ManifestCode:  item.ManifestCode,
		Rule:          rule,
		Status:        "scanned",
		Progress:      c.Progress(),
	}, nil
}
