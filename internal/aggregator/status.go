package aggregator

import (
	"medresponse/internal/models"
)

// Bucket is a role-specific display category a raw status normalizes into.
type Bucket string

const (
	// Hospital kanban buckets, in column order.
	BucketDispatched Bucket = "dispatched"
	BucketEnRoute    Bucket = "enRoute"
	BucketArrived    Bucket = "arrived"
	BucketAdmitted   Bucket = "admitted"
	BucketDischarged Bucket = "discharged"

	// Police incident buckets, in severity order.
	BucketOpen       Bucket = "Open"
	BucketResponding Bucket = "Responding"
	BucketClosed     Bucket = "Closed"
)

// Taxonomy maps raw status strings into one role's ordered bucket set. The
// mapping is total: bucket names map to themselves, so normalizing is
// idempotent, and anything unrecognized lands in the first bucket rather
// than erroring, since the upstream store is not schema-enforced.
type Taxonomy struct {
	Name    string
	Buckets []Bucket
	mapping map[string]Bucket
}

// HospitalTaxonomy orders cases for the hospital kanban view. A case that is
// pending or accepted is not yet physically present, so both land in
// "dispatched".
var HospitalTaxonomy = newTaxonomy("hospital",
	[]Bucket{BucketDispatched, BucketEnRoute, BucketArrived, BucketAdmitted, BucketDischarged},
	map[models.EmergencyStatus]Bucket{
		models.StatusPending:    BucketDispatched,
		models.StatusAccepted:   BucketDispatched,
		models.StatusEnRoute:    BucketEnRoute,
		models.StatusPickedUp:   BucketEnRoute,
		models.StatusArrived:    BucketArrived,
		models.StatusAtHospital: BucketArrived,
		models.StatusAdmitted:   BucketAdmitted,
		models.StatusDischarged: BucketDischarged,
		models.StatusCompleted:  BucketDischarged,
	})

// PoliceTaxonomy folds every known post-acceptance status into Closed; a
// string outside the documented status set takes the Open default.
var PoliceTaxonomy = newTaxonomy("police",
	[]Bucket{BucketOpen, BucketResponding, BucketClosed},
	map[models.EmergencyStatus]Bucket{
		models.StatusPending:    BucketOpen,
		models.StatusAccepted:   BucketResponding,
		models.StatusEnRoute:    BucketClosed,
		models.StatusArrived:    BucketClosed,
		models.StatusPickedUp:   BucketClosed,
		models.StatusAtHospital: BucketClosed,
		models.StatusAdmitted:   BucketClosed,
		models.StatusDischarged: BucketClosed,
		models.StatusCompleted:  BucketClosed,
	})

func newTaxonomy(name string, buckets []Bucket, raw map[models.EmergencyStatus]Bucket) *Taxonomy {
	mapping := make(map[string]Bucket, len(raw)+len(buckets))
	for status, bucket := range raw {
		mapping[string(status)] = bucket
	}
	for _, bucket := range buckets {
		mapping[string(bucket)] = bucket
	}
	return &Taxonomy{
		Name:    name,
		Buckets: buckets,
		mapping: mapping,
	}
}

// Normalize returns the display bucket for a raw status string.
func (t *Taxonomy) Normalize(raw string) Bucket {
	if bucket, ok := t.mapping[raw]; ok {
		return bucket
	}
	return t.Buckets[0]
}

// NormalizeStatus is the typed convenience used by the dashboard services.
func (t *Taxonomy) NormalizeStatus(status models.EmergencyStatus) Bucket {
	return t.Normalize(string(status))
}

// UrgencyLabel classifies a record for filter chips: an SOS is always
// critical, a scheduled ambulance booking is standard.
func UrgencyLabel(emergencyType models.EmergencyType) string {
	if emergencyType == models.EmergencyTypeSOS {
		return "critical"
	}
	return "standard"
}
