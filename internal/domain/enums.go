package domain

// MealType classifies a nutrition entry.
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
	MealSnack     MealType = "snack"
)

// MealTypes returns every meal type in display order.
func MealTypes() []MealType {
	return []MealType{MealBreakfast, MealLunch, MealDinner, MealSnack}
}

// Valid reports whether m is a known meal type.
func (m MealType) Valid() bool {
	switch m {
	case MealBreakfast, MealLunch, MealDinner, MealSnack:
		return true
	}
	return false
}

// Label returns the display label.
func (m MealType) Label() string {
	switch m {
	case MealBreakfast:
		return "Breakfast"
	case MealLunch:
		return "Lunch"
	case MealDinner:
		return "Dinner"
	case MealSnack:
		return "Snack"
	}
	return ""
}

// WeightUnit is the unit a lifted weight was recorded in.
type WeightUnit string

const (
	WeightKg  WeightUnit = "kg"
	WeightLbs WeightUnit = "lbs"
)

func (u WeightUnit) Valid() bool {
	switch u {
	case WeightKg, WeightLbs:
		return true
	}
	return false
}

func (u WeightUnit) Label() string {
	switch u {
	case WeightKg:
		return "kg"
	case WeightLbs:
		return "lbs"
	}
	return ""
}

// DurationUnit declares how a jogging duration was measured.
type DurationUnit string

const (
	DurationMinutes DurationUnit = "minutes"
	DurationSeconds DurationUnit = "seconds"
)

func (u DurationUnit) Valid() bool {
	switch u {
	case DurationMinutes, DurationSeconds:
		return true
	}
	return false
}

func (u DurationUnit) Label() string {
	switch u {
	case DurationMinutes:
		return "min"
	case DurationSeconds:
		return "s"
	}
	return ""
}

// BodyPart is the muscle group an exercise targets.
type BodyPart string

const (
	BodyPartChest     BodyPart = "chest"
	BodyPartBack      BodyPart = "back"
	BodyPartShoulders BodyPart = "shoulders"
	BodyPartArms      BodyPart = "arms"
	BodyPartLegs      BodyPart = "legs"
	BodyPartCore      BodyPart = "core"
	BodyPartFullBody  BodyPart = "full_body"
	BodyPartCardio    BodyPart = "cardio"
)

func (b BodyPart) Valid() bool {
	switch b {
	case BodyPartChest, BodyPartBack, BodyPartShoulders, BodyPartArms, BodyPartLegs, BodyPartCore, BodyPartFullBody, BodyPartCardio:
		return true
	}
	return false
}

func (b BodyPart) Label() string {
	switch b {
	case BodyPartChest:
		return "Chest"
	case BodyPartBack:
		return "Back"
	case BodyPartShoulders:
		return "Shoulders"
	case BodyPartArms:
		return "Arms"
	case BodyPartLegs:
		return "Legs"
	case BodyPartCore:
		return "Core"
	case BodyPartFullBody:
		return "Full body"
	case BodyPartCardio:
		return "Cardio"
	}
	return ""
}

// ParseBodyPart maps free text (as found in legacy notes) onto a BodyPart.
func ParseBodyPart(value string) (BodyPart, bool) {
	switch normalizeToken(value) {
	case "chest":
		return BodyPartChest, true
	case "back":
		return BodyPartBack, true
	case "shoulders", "shoulder":
		return BodyPartShoulders, true
	case "arms", "arm", "biceps", "triceps":
		return BodyPartArms, true
	case "legs", "leg":
		return BodyPartLegs, true
	case "core", "abs":
		return BodyPartCore, true
	case "full_body", "fullbody", "full body":
		return BodyPartFullBody, true
	case "cardio":
		return BodyPartCardio, true
	}
	return "", false
}

// BodyType is the self-reported somatotype on the profile.
type BodyType string

const (
	BodyTypeEctomorph BodyType = "ectomorph"
	BodyTypeMesomorph BodyType = "mesomorph"
	BodyTypeEndomorph BodyType = "endomorph"
)

func (b BodyType) Valid() bool {
	switch b {
	case BodyTypeEctomorph, BodyTypeMesomorph, BodyTypeEndomorph:
		return true
	}
	return false
}

func (b BodyType) Label() string {
	switch b {
	case BodyTypeEctomorph:
		return "Ectomorph"
	case BodyTypeMesomorph:
		return "Mesomorph"
	case BodyTypeEndomorph:
		return "Endomorph"
	}
	return ""
}

// AthleteLevel is the self-reported training experience.
type AthleteLevel string

const (
	LevelBeginner     AthleteLevel = "beginner"
	LevelIntermediate AthleteLevel = "intermediate"
	LevelAdvanced     AthleteLevel = "advanced"
	LevelProfessional AthleteLevel = "professional"
)

func (l AthleteLevel) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced, LevelProfessional:
		return true
	}
	return false
}

func (l AthleteLevel) Label() string {
	switch l {
	case LevelBeginner:
		return "Beginner"
	case LevelIntermediate:
		return "Intermediate"
	case LevelAdvanced:
		return "Advanced"
	case LevelProfessional:
		return "Professional"
	}
	return ""
}

// AnalysisKind distinguishes body and food analysis records.
type AnalysisKind string

const (
	AnalysisBody AnalysisKind = "body"
	AnalysisFood AnalysisKind = "food"
)

func (k AnalysisKind) Valid() bool {
	switch k {
	case AnalysisBody, AnalysisFood:
		return true
	}
	return false
}

// Table returns the backend table holding records of this kind.
func (k AnalysisKind) Table() Table {
	switch k {
	case AnalysisBody:
		return TableBodyAnalysis
	case AnalysisFood:
		return TableFoodAnalysis
	}
	return ""
}

// AnalysisSource records whether metrics came from the AI gateway or a manual form.
type AnalysisSource string

const (
	SourceAI     AnalysisSource = "ai"
	SourceManual AnalysisSource = "manual"
)

func (s AnalysisSource) Valid() bool {
	switch s {
	case SourceAI, SourceManual:
		return true
	}
	return false
}

// Op is the kind of row mutation.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

func (o Op) Valid() bool {
	switch o {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}
