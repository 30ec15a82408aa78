package mutation

import "github.com/serabi/organized-glitter-sub001/pkg/remote"

// applyPatch returns a clone of the entity with the patch merged in.
// This is the locally computed projection written to the cache before
// the remote call resolves; server-computed fields are picked up later
// by commit and reconcile.
func applyPatch(entity remote.Entity, patch remote.Patch) remote.Entity {
	out := entity.Clone()
	for field, value := range patch {
		out[field] = value
	}
	return out
}

// patchInList returns a clone of the list page with the matching item
// replaced by replace(item). The second return is false when the id is
// not on this page.
func patchInList(list remote.ListResult, id string, replace func(remote.Entity) remote.Entity) (remote.ListResult, bool) {
	found := false
	out := list.Clone()
	for i, item := range out.Items {
		if item.ID() == id {
			out.Items[i] = replace(item)
			found = true
		}
	}
	return out, found
}

// removeFromList returns a clone of the list page with the matching item
// removed and the total decremented. The second return is false when the
// id is not on this page.
func removeFromList(list remote.ListResult, id string) (remote.ListResult, bool) {
	out := list.Clone()
	items := out.Items[:0]
	found := false
	for _, item := range out.Items {
		if item.ID() == id {
			found = true
			continue
		}
		items = append(items, item)
	}
	out.Items = items
	if found && out.TotalCount > 0 {
		out.TotalCount--
	}
	return out, found
}
