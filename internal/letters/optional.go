package letters

import (
	"bytes"
	"encoding/json"
)

// OptionalID distinguishes an absent JSON field from an explicit null.
type OptionalID struct {
	Set   bool
	Value *int64
}

// UnmarshalJSON records that the field was present.
func (o *OptionalID) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// ToUpdate converts the request into a LineUpdate.
func (r UpdateLineRequest) ToUpdate() LineUpdate {
	var u LineUpdate
	if r.PartnerID.Set {
		if r.PartnerID.Value == nil {
			u.ClearPartner = true
		} else {
			u.PartnerID = r.PartnerID.Value
		}
	}
	if r.ChildID.Set {
		if r.ChildID.Value == nil {
			u.ClearChild = true
		} else {
			u.ChildID = r.ChildID.Value
		}
	}
	u.Status = r.Status
	return u
}
