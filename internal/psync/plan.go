package psync

// Plan is the output of diffing the remote catalog against the local
// inventory. ToFetch preserves catalog order so progress indices are
// stable across a run. Present holds assets whose local record matches
// the remote modification timestamp; SyncService rehashes those records
// and moves any that fail verification back into ToFetch before the plan
// is acted on.
type Plan struct {
	ToFetch []Asset
	Present []Asset
}

// ComputePlan diffs a remote catalog snapshot against a local inventory
// snapshot. It is a pure function: no network or disk I/O.
//
// An asset goes to ToFetch when it has no inventory entry, or when the
// remote modification timestamp differs from the stored one (the asset
// was edited on the device after it was mirrored).
func ComputePlan(catalog []Asset, inventory map[string]InventoryEntry) Plan {
	var plan Plan
	for _, asset := range catalog {
		entry, ok := inventory[asset.ID]
		if !ok || !entry.ModifiedAt.Equal(asset.ModifiedAt) {
			plan.ToFetch = append(plan.ToFetch, asset)
			continue
		}
		plan.Present = append(plan.Present, asset)
	}
	return plan
}
