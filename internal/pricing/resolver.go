package pricing

import (
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/snapstudio-backend/pkg/errors"
)

// Table is one immutable price table version.
type Table struct {
	Version   int64                    `json:"version"`
	Entries   map[enums.PriceKey]int64 `json:"entries"`
	CreatedBy string                   `json:"created_by,omitempty"`
	Note      string                   `json:"note,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
}

// Cost returns the configured cost for key.
func (t *Table) Cost(key enums.PriceKey) (int64, bool) {
	if t == nil {
		return 0, false
	}
	cost, ok := t.Entries[key]
	return cost, ok && cost > 0
}

// Quote is the priced shape of one operation.
type Quote struct {
	Kind         enums.OperationKind `json:"kind"`
	Cost         int64               `json:"cost"`
	PriceKey     enums.PriceKey      `json:"price_key"`
	UnitCost     int64               `json:"unit_cost"`
	Units        int                 `json:"units"`
	Variations   int                 `json:"variations"`
	Images       int                 `json:"images"`
	TableVersion int64               `json:"price_table_version"`
}

// Resolve prices an operation against table. It never touches storage.
func Resolve(table *Table, kind enums.OperationKind, params Parameters) (Quote, error) {
	if table == nil {
		return Quote{}, pkgerrors.New(pkgerrors.CodeInternal, "price table unavailable")
	}
	if err := params.Validate(kind); err != nil {
		return Quote{}, err
	}

	q := Quote{Kind: kind, TableVersion: table.Version, Units: 1}
	variations := params.VariationsFor(kind)

	switch kind {
	case enums.OperationGenerate:
		q.Variations = variations
		switch {
		case params.HasCustomPrompt():
			q.PriceKey = enums.PriceBackground
		case strings.TrimSpace(params.Quality) == QualityBasic:
			q.PriceKey = enums.PriceBasic
			q.Units = len(params.SceneList())
		default:
			q.PriceKey = enums.PriceProfessional
			q.Units = len(params.SceneList())
		}
	case enums.OperationEdit:
		q.PriceKey = enums.PriceEdit
		q.Variations = max(1, variations)
	case enums.OperationVirtualModel:
		q.PriceKey = enums.PriceVirtualModel
		q.Variations = variations
	case enums.OperationRetouch:
		q.PriceKey = enums.PriceRetouch
		q.Variations = 1
	}

	unitCost, ok := table.Cost(q.PriceKey)
	if !ok {
		return Quote{}, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("price table v%d has no cost for %s", table.Version, q.PriceKey))
	}
	q.UnitCost = unitCost
	q.Images = q.Units * q.Variations
	q.Cost = int64(q.Images) * unitCost
	if q.Cost <= 0 {
		return Quote{}, invalid(FieldErrors{"parameters": "no billable units"})
	}
	return q, nil
}

// ResolveCost is Resolve reduced to the credit amount.
func ResolveCost(table *Table, kind enums.OperationKind, params Parameters) (int64, error) {
	q, err := Resolve(table, kind, params)
	if err != nil {
		return 0, err
	}
	return q.Cost, nil
}
