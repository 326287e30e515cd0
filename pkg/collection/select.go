package collection

// ViewLayer is the presentation layer holding per-object selection state.
// Base returns the layer's record for ob, or nil when the layer has none.
type ViewLayer interface {
	Base(ob *Object) *Base
}

// SelectObjects selects (or, with deselect, deselects) every object reachable
// from c in the given layer and reports whether any selection bit changed.
// Objects behind a select restriction are never selected, and nothing happens
// when c itself restricts selection.
func SelectObjects(layer ViewLayer, c *Collection, deselect bool) bool {
	if layer == nil || c == nil {
		return false
	}
	if c.flag&RestrictSelect != 0 {
		return false
	}

	changed := false
	for _, entry := range c.Flattened() {
		base := layer.Base(entry.Object)
		if base == nil {
			continue
		}
		if deselect {
			if base.Flags&BaseSelected != 0 {
				base.Flags &^= BaseSelected
				changed = true
			}
			continue
		}
		if entry.Restrict&RestrictSelect != 0 {
			continue
		}
		if base.Flags&BaseSelectable != 0 && base.Flags&BaseSelected == 0 {
			base.Flags |= BaseSelected
			changed = true
		}
	}
	return changed
}
