package testutil

import "github.com/roach88/composer/internal/model"

// CensusSource returns a fresh copy of the sample "names" source used
// across package tests.
//
// Fields, in declaration order:
//
//	name, state, gender (string dimensions)
//	year (number dimension), birth_date (date dimension)
//	population, name_count (aggregate measures)
//	population_rank (calculation)
//	states (join: code, region, area, state_count)
//	by_gender, by_state (turtles)
//
// It declares one parameter, min_year, defaulting to 1910.
func CensusSource() *model.Source {
	minYear := "1910"
	limit := 10
	states := &model.Source{
		Name: "states",
		Kind: model.SourceTable,
		Fields: []model.Field{
			&model.Atomic{Name: "code", Type: model.TypeString, Expression: model.ExprScalar},
			&model.Atomic{Name: "region", Type: model.TypeString, Expression: model.ExprScalar},
			&model.Atomic{Name: "area", Type: model.TypeNumber, Expression: model.ExprScalar},
			&model.Atomic{Name: "state_count", Type: model.TypeNumber, Expression: model.ExprAggregate, Code: "count()"},
		},
	}
	return &model.Source{
		Name: "names",
		Kind: model.SourceTable,
		Fields: []model.Field{
			&model.Atomic{Name: "name", Type: model.TypeString, Expression: model.ExprScalar},
			&model.Atomic{Name: "state", Type: model.TypeString, Expression: model.ExprScalar},
			&model.Atomic{Name: "gender", Type: model.TypeString, Expression: model.ExprScalar},
			&model.Atomic{Name: "year", Type: model.TypeNumber, Expression: model.ExprScalar},
			&model.Atomic{Name: "birth_date", Type: model.TypeDate, Expression: model.ExprScalar},
			&model.Atomic{Name: "population", Type: model.TypeNumber, Expression: model.ExprAggregate, Code: "sum(number)"},
			&model.Atomic{Name: "name_count", Type: model.TypeNumber, Expression: model.ExprAggregate, Code: "count(name)"},
			&model.Atomic{Name: "population_rank", Type: model.TypeNumber, Expression: model.ExprCalculation, Code: "rank()"},
			&model.Join{Name: "states", Relationship: model.JoinOne, Source: states},
			&model.Turtle{Query: &model.Query{
				Name: "by_gender",
				Pipeline: []*model.Stage{{
					Kind: model.StageReduce,
					Fields: []model.Entry{
						&model.Reference{Path: "gender"},
						&model.Reference{Path: "population"},
					},
				}},
			}},
			&model.Turtle{Query: &model.Query{
				Name: "by_state",
				Pipeline: []*model.Stage{{
					Kind: model.StageReduce,
					Fields: []model.Entry{
						&model.Reference{Path: "state"},
						&model.Reference{Path: "population"},
					},
					Filters: []model.Filter{{Code: "year > 2000", Kind: model.ExprScalar}},
					OrderBy: []model.OrderBy{{Field: "population", Direction: model.Descending}},
					Limit:   &limit,
				}},
				Annotation: &model.Annotation{Notes: []string{"# bar_chart"}},
			}},
		},
		Parameters: []model.Parameter{
			{Name: "min_year", Type: model.TypeNumber, Default: &minYear},
		},
	}
}

// CensusModel wraps CensusSource in a model named "census".
func CensusModel() *model.Model {
	return &model.Model{Name: "census", Sources: []*model.Source{CensusSource()}}
}
