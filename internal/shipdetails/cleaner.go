package shipdetails

import "time"

const unknownOverlapDays = 100

// invalidateOverlappingUnknowns drops unknown insurer rows that a later
// scrape contradicted: a known insurer whose registry start date lies after
// the unknown observation, written after it, while the unknown row was
// scraped within a hundred days of its own start date. Such an unknown is a
// registry lag, not a real gap in cover.
func (u *Updater) invalidateOverlappingUnknowns() error {
	byShip, err := u.Store.AllInsurers()
	if err != nil {
		return err
	}
	for _, rows := range byShip {
		for i := range rows {
			unknown := &rows[i]
			if !unknown.IsValid || !unknown.Unknown() || unknown.DateFromEquasis == nil {
				continue
			}
			seen := rowCheckTime(unknown)
			if seen.Sub(*unknown.DateFromEquasis) >= unknownOverlapDays*24*time.Hour {
				continue
			}
			for j := range rows {
				known := &rows[j]
				if known.Unknown() || known.DateFromEquasis == nil || known.UpdatedOn == nil {
					continue
				}
				if unknown.DateFromEquasis.Before(*known.DateFromEquasis) && known.UpdatedOn.After(seen) {
					unknown.IsValid = false
					if err := u.Store.SaveInsurer(unknown); err != nil {
						return err
					}
					break
				}
			}
		}
	}
	return nil
}
