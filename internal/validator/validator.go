// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"creditflow/internal/models"
)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("allocation_action", validateAllocationAction)
		_ = v.RegisterValidation("search_type", validateSearchType)
		_ = v.RegisterValidation("year_month", validateYearMonth)
		_ = v.RegisterValidation("goal_type", validateGoalType)
		_ = v.RegisterValidation("category_type", validateCategoryType)
	}
}

func validateAllocationAction(fl validator.FieldLevel) bool {
	_, ok := models.TargetKindFor(models.AllocationType(fl.Field().String()))
	return ok
}

func validateSearchType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "return", "healthcare":
		return true
	}
	return false
}

func validateYearMonth(fl validator.FieldLevel) bool {
	_, err := time.Parse(models.MonthLayout, fl.Field().String())
	return err == nil
}

func validateGoalType(fl validator.FieldLevel) bool {
	switch models.GoalType(fl.Field().String()) {
	case models.GoalTypeMonthlySavings, models.GoalTypeFundTarget, models.GoalTypeCategoryLimit, models.GoalTypeNetWorth:
		return true
	}
	return false
}

func validateCategoryType(fl validator.FieldLevel) bool {
	switch models.CategoryType(fl.Field().String()) {
	case models.CategoryTypeIncome, models.CategoryTypeExpense:
		return true
	}
	return false
}
