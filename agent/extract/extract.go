package extract

import (
	"regexp"
	"strings"

	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
	statex "github.com/tanpawarit/factory-copilot/agent/state"
	toolx "github.com/tanpawarit/factory-copilot/agent/tool"
)

// An id token must contain a digit so "customer orders" does not yield "ORDERS".
const idToken = `([A-Za-z0-9_-]*\d[A-Za-z0-9_-]*)`

var (
	skuLabelled      = regexp.MustCompile(`(?i)\bsku[\s:#-]*` + idToken)
	skuBare          = regexp.MustCompile(`\b([A-Z]{2,}\d{2,}[A-Z0-9]*)\b`)
	orderNumberRe    = regexp.MustCompile(`(?i)\b(SO-\d+)\b`)
	workOrderRe      = regexp.MustCompile(`(?i)\b(WO-\d+)\b`)
	customerLabelled = regexp.MustCompile(`(?i)\bcustomer[\s:#-]*` + idToken)
	customerBare     = regexp.MustCompile(`(?i)\b(CUST-\d+)\b`)
	warehouseCode    = regexp.MustCompile(`(?i)\b(WH[_-][A-Za-z0-9_]+)\b`)
	warehouseNamed   = regexp.MustCompile(`\b[Ww]arehouse[\s:#]+([A-Z][A-Z0-9_-]+|[A-Za-z0-9_-]*\d[A-Za-z0-9_-]*)`)
)

var periodWords = []struct {
	period string
	re     *regexp.Regexp
}{
	{toolx.PeriodDaily, regexp.MustCompile(`(?i)\b(daily|day|days|tomorrow)\b`)},
	{toolx.PeriodMonthly, regexp.MustCompile(`(?i)\b(monthly|month|months|quarter)\b`)},
	{toolx.PeriodWeekly, regexp.MustCompile(`(?i)\b(weekly|week|weeks)\b`)},
}

var alertActionWords = []struct {
	action string
	re     *regexp.Regexp
}{
	{toolx.AlertActionAcknowledge, regexp.MustCompile(`(?i)\b(acknowledge|ack)\b`)},
	{toolx.AlertActionResolve, regexp.MustCompile(`(?i)\b(resolve|close)\b`)},
	{toolx.AlertActionCreate, regexp.MustCompile(`(?i)\b(create|raise|trigger|send|file)\b`)},
}

var alertTypeWords = []struct {
	alertType string
	re        *regexp.Regexp
}{
	{toolx.AlertTypeLowStock, regexp.MustCompile(`(?i)\b(stock|inventory|reorder|shortage)`)},
	{toolx.AlertTypeProductionDelay, regexp.MustCompile(`(?i)\b(production|work order|delay|behind)`)},
	{toolx.AlertTypeOrderIssue, regexp.MustCompile(`(?i)\b(order|customer|shipment)`)},
}

// Entity is the business object a turn is about.
type Entity struct {
	Type      string
	ID        string
	Warehouse string
}

// ResolveEntity picks the entity for a turn: caller hints first, then ids written in the
// query, then what the previous turn was about.
func ResolveEntity(query string, hints contractx.Hints, conversation map[string]any) Entity {
	e := Entity{
		Type:      hints.EntityType(),
		ID:        hints.EntityID(),
		Warehouse: hints.String(contractx.HintWarehouse),
	}
	if e.ID == "" {
		e.Type, e.ID = entityFromText(query)
	}
	if e.ID == "" {
		e.Type = contextString(conversation, statex.ContextLastEntityType)
		e.ID = contextString(conversation, statex.ContextLastEntityID)
	}
	if e.Warehouse == "" {
		e.Warehouse = warehouseFromText(query)
	}
	if e.Warehouse == "" {
		e.Warehouse = contextString(conversation, statex.ContextWarehouse)
	}
	return e
}

func entityFromText(query string) (string, string) {
	switch {
	case firstGroup(orderNumberRe, query) != "":
		return contractx.EntityOrder, strings.ToUpper(firstGroup(orderNumberRe, query))
	case firstGroup(workOrderRe, query) != "":
		return contractx.EntityWorkOrder, strings.ToUpper(firstGroup(workOrderRe, query))
	case skuFromText(query) != "":
		return contractx.EntitySKU, skuFromText(query)
	case customerFromText(query) != "":
		return contractx.EntityCustomer, customerFromText(query)
	}
	return "", ""
}

func skuFromText(query string) string {
	if v := firstGroup(skuLabelled, query); v != "" {
		return strings.ToUpper(v)
	}
	return firstGroup(skuBare, query)
}

func warehouseFromText(query string) string {
	if v := firstGroup(warehouseCode, query); v != "" {
		return strings.ToUpper(v)
	}
	return firstGroup(warehouseNamed, query)
}

func customerFromText(query string) string {
	if v := firstGroup(customerBare, query); v != "" {
		return strings.ToUpper(v)
	}
	return strings.ToUpper(firstGroup(customerLabelled, query))
}

// HeuristicExtractor fills tool arguments from regular expressions over the query, the
// caller hints and the conversation context. It only emits fields the tool declares.
type HeuristicExtractor struct{}

var _ contractx.ArgumentExtractor = HeuristicExtractor{}

func (HeuristicExtractor) Extract(req contractx.ExtractionRequest) map[string]any {
	entity := ResolveEntity(req.Query, req.Hints, req.Conversation)
	if entity.ID == "" && req.Snapshot != nil {
		entity.Type, entity.ID = req.Snapshot.EntityType, req.Snapshot.EntityID
	}
	idFor := func(entityType string) string {
		if entity.Type == entityType || (entity.Type == "" && entityType == contractx.EntitySKU) {
			return entity.ID
		}
		return ""
	}

	candidates := map[string]string{
		"warehouse":  entity.Warehouse,
		"period":     period(req.Query),
		"action":     alertAction(req.Query),
		"alert_type": alertType(req.Query),
		"entity_id":  entity.ID,
		"message":    strings.TrimSpace(req.Query),
	}

	// Ids written in the query win over the resolved entity for their own field.
	candidates["sku_code"] = firstNonEmpty(skuFromText(req.Query), idFor(contractx.EntitySKU))
	candidates["customer_id"] = firstNonEmpty(customerFromText(req.Query), idFor(contractx.EntityCustomer))
	candidates["order_number"] = firstNonEmpty(strings.ToUpper(firstGroup(orderNumberRe, req.Query)), idFor(contractx.EntityOrder))
	candidates["work_order_id"] = firstNonEmpty(strings.ToUpper(firstGroup(workOrderRe, req.Query)), idFor(contractx.EntityWorkOrder))

	out := make(map[string]any, len(req.Tool.InputSchema))
	for field := range req.Tool.InputSchema {
		if v := candidates[field]; v != "" {
			out[field] = v
		}
	}
	return out
}

func period(query string) string {
	for _, w := range periodWords {
		if w.re.MatchString(query) {
			return w.period
		}
	}
	return toolx.PeriodWeekly
}

// alertAction only reports an action the query asks for outright. A question that merely
// mentions a problem yields no action, so the alert tool refuses to run.
func alertAction(query string) string {
	for _, w := range alertActionWords {
		if w.re.MatchString(query) {
			return w.action
		}
	}
	return ""
}

func alertType(query string) string {
	for _, w := range alertTypeWords {
		if w.re.MatchString(query) {
			return w.alertType
		}
	}
	return toolx.AlertTypeGeneral
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func contextString(conversation map[string]any, key string) string {
	v, ok := conversation[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
