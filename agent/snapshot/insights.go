package snapshot

import (
	"fmt"
	"strconv"
	"strings"

	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
)

const statusCritical = "CRITICAL"

// DeriveInsights applies the fixed threshold rules to the fetched sections. Sections that
// were not fetched produce no insights.
func DeriveInsights(snap *contractx.ContextSnapshot, cfg Config) []contractx.Insight {
	if snap == nil {
		return nil
	}
	var out []contractx.Insight

	if snap.Has(contractx.SectionInventory) {
		for _, item := range snap.Inventory {
			if item.BelowReorderPoint() {
				out = append(out, contractx.Insight{
					Kind:    contractx.InsightBelowReorder,
					Subject: item.SKU,
					Text: fmt.Sprintf("%s below reorder point (%s available, reorder at %s)",
						item.SKU, qty(item.QuantityAvailable), qty(item.ReorderPoint)),
				})
			}
			if strings.EqualFold(item.Status, statusCritical) {
				out = append(out, contractx.Insight{
					Kind:    contractx.InsightCriticalInventory,
					Subject: item.SKU,
					Text:    fmt.Sprintf("%s at critical inventory level, immediate action needed", item.SKU),
				})
			}
		}
	}

	if snap.Has(contractx.SectionOrders) {
		count := len(snap.Orders)
		var total float64
		for _, o := range snap.Orders {
			total += o.TotalAmount
		}
		if count > cfg.HighOrderVolume {
			out = append(out, contractx.Insight{
				Kind: contractx.InsightHighOrderVolume,
				Text: fmt.Sprintf("High order volume: %d open orders", count),
			})
		}
		if cfg.HighOrderValue > 0 && total > cfg.HighOrderValue {
			out = append(out, contractx.Insight{
				Kind: contractx.InsightHighOrderValue,
				Text: fmt.Sprintf("High order value: %s", strconv.FormatFloat(total, 'f', 0, 64)),
			})
		}
	}

	if snap.Has(contractx.SectionProduction) && snap.Production != nil && snap.Production.QuantityOrdered > 0 {
		rate := snap.Production.CompletionRate()
		switch {
		case rate < cfg.ProductionBehindRate:
			out = append(out, contractx.Insight{
				Kind: contractx.InsightProductionBehind,
				Text: fmt.Sprintf("Production behind schedule (%.1f%% complete)", rate),
			})
		case rate > cfg.ProductionOnTrackRate:
			out = append(out, contractx.Insight{
				Kind: contractx.InsightProductionOnTrack,
				Text: fmt.Sprintf("Production on track (%.1f%% complete)", rate),
			})
		}
	}
	return out
}

func qty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
