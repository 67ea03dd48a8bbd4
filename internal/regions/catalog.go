package regions

import "sort"

// Descriptor is the static per-region configuration consumed by the
// orchestrator and the scanner. Priority 1 is highest.
type Descriptor struct {
	ID              string
	Priority        int
	ComplianceTags  []string
	DataResidency   bool
	AvailabilityAZs int
	InstanceType    string
	NetworkCIDR     string
}

// Catalog is an ordered, read-only list of region descriptors.
type Catalog struct {
	ordered []Descriptor
	byID    map[string]Descriptor
}

// New builds a catalog from the given descriptors, ordered by priority then id.
func New(descriptors []Descriptor) *Catalog {
	ordered := append([]Descriptor(nil), descriptors...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].ID < ordered[j].ID
	})
	byID := make(map[string]Descriptor, len(ordered))
	for _, d := range ordered {
		byID[d.ID] = d
	}
	return &Catalog{ordered: ordered, byID: byID}
}

// Default returns the built-in region table.
func Default() *Catalog {
	return New([]Descriptor{
		{ID: "us-east-1", Priority: 1, ComplianceTags: []string{"SOC2", "HIPAA"}, AvailabilityAZs: 6, InstanceType: "m5.xlarge", NetworkCIDR: "10.0.0.0/16"},
		{ID: "us-west-2", Priority: 2, ComplianceTags: []string{"SOC2", "HIPAA"}, AvailabilityAZs: 4, InstanceType: "m5.xlarge", NetworkCIDR: "10.1.0.0/16"},
		{ID: "eu-west-1", Priority: 1, ComplianceTags: []string{"SOC2", "GDPR"}, DataResidency: true, AvailabilityAZs: 3, InstanceType: "m5.large", NetworkCIDR: "10.2.0.0/16"},
		{ID: "eu-central-1", Priority: 2, ComplianceTags: []string{"SOC2", "GDPR"}, DataResidency: true, AvailabilityAZs: 3, InstanceType: "m5.large", NetworkCIDR: "10.3.0.0/16"},
		{ID: "ap-southeast-1", Priority: 3, ComplianceTags: []string{"SOC2", "MTCS"}, AvailabilityAZs: 3, InstanceType: "m5.large", NetworkCIDR: "10.4.0.0/16"},
		{ID: "ap-northeast-1", Priority: 3, ComplianceTags: []string{"SOC2", "ISMAP"}, AvailabilityAZs: 4, InstanceType: "m5.large", NetworkCIDR: "10.5.0.0/16"},
	})
}

// Get returns the descriptor for the given region id.
func (c *Catalog) Get(id string) (Descriptor, bool) {
	d, ok := c.byID[id]
	return d, ok
}

// Contains reports whether the region id is known.
func (c *Catalog) Contains(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// List returns all descriptors in priority order.
func (c *Catalog) List() []Descriptor {
	return append([]Descriptor(nil), c.ordered...)
}

// IDs returns all region ids in priority order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.ordered))
	for i, d := range c.ordered {
		ids[i] = d.ID
	}
	return ids
}
