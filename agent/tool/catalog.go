package tool

import (
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/factory-copilot/agent/contract"
)

// ToolInfos converts descriptors to the eino tool schema so a chat model can be bound to them.
func ToolInfos(descs []contractx.Descriptor) []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(descs))
	for _, d := range descs {
		params := make(map[string]*schema.ParameterInfo, len(d.InputSchema))
		for name, field := range d.InputSchema {
			params[name] = &schema.ParameterInfo{
				Type:     dataType(field.Type),
				Desc:     field.Description,
				Enum:     field.Enum,
				Required: field.Required,
			}
		}
		infos = append(infos, &schema.ToolInfo{
			Name:        d.Name,
			Desc:        d.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return infos
}

func dataType(t contractx.TypeHint) schema.DataType {
	switch t {
	case contractx.TypeInteger:
		return schema.Integer
	case contractx.TypeNumber:
		return schema.Number
	case contractx.TypeBoolean:
		return schema.Boolean
	default:
		return schema.String
	}
}
