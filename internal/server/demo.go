package server

import (
	"encoding/json"
	"fmt"
	"os"

	"reconfigure-gui/internal/params"
)

// DemoGroup is the parameter group served when no group file is given.
func DemoGroup() params.GroupDescription {
	return params.GroupDescription{
		Name: "demo",
		Parameters: []params.Description{
			{Name: "int_param", Type: params.Int, Default: int64(50), Min: int64(0), Max: int64(100), Description: "An integer parameter"},
			{Name: "double_param", Type: params.Double, Default: 0.5, Min: 0.0, Max: 1.0, Description: "A double parameter"},
			{Name: "str_param", Type: params.String, Default: "Hello World", Description: "A string parameter"},
			{Name: "bool_param", Type: params.Bool, Default: true, Description: "A boolean parameter"},
			{
				Name: "size", Type: params.Int, Default: int64(1), Min: int64(0), Max: int64(3),
				Description: "A size parameter which is edited via an enum",
				Choices: []params.Choice{
					{Name: "Small", Value: int64(0), Description: "A small constant"},
					{Name: "Medium", Value: int64(1), Description: "A medium constant"},
					{Name: "Large", Value: int64(2), Description: "A large constant"},
					{Name: "ExtraLarge", Value: int64(3), Description: "An extra large constant"},
				},
			},
		},
	}
}

// LoadGroup reads a parameter group from a JSON file.
func LoadGroup(path string) (params.GroupDescription, error) {
	var desc params.GroupDescription

	data, err := os.ReadFile(path)
	if err != nil {
		return desc, fmt.Errorf("read group: %w", err)
	}
	if err := json.Unmarshal(data, &desc); err != nil {
		return desc, fmt.Errorf("parse group %s: %w", path, err)
	}
	if len(desc.Parameters) == 0 {
		return desc, fmt.Errorf("group %s declares no parameters", path)
	}
	return desc, nil
}
