package core

import (
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// InventoryDiff is a line diff between an exported inventory and the
// current wallet.
type InventoryDiff struct {
	Added         []string // Lines only in the wallet
	Removed       []string // Lines only in the export
	Patch         string   // Unified patch from export to wallet
	ExportCreated time.Time
	SameWallet    bool
}

// Empty reports whether the export matches the wallet.
func (d *InventoryDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

func diffInventory(exported, current string) *InventoryDiff {
	dmp := diffmatchpatch.New()

	a, b, lineArray := dmp.DiffLinesToChars(exported, current)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	d := &InventoryDiff{}
	for _, diff := range diffs {
		switch diff.Type {
		case diffmatchpatch.DiffInsert:
			d.Added = append(d.Added, splitLines(diff.Text)...)
		case diffmatchpatch.DiffDelete:
			d.Removed = append(d.Removed, splitLines(diff.Text)...)
		}
	}

	if !d.Empty() {
		d.Patch = dmp.PatchToText(dmp.PatchMake(exported, diffs))
	}
	return d
}

func splitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
