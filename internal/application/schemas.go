package application

// Step payload schemas, expressed as Go maps and validated with gojsonschema.
// Each schema is deliberately permissive about extra keys: the wizard front
// end evolves faster than the backend, and unknown fields are merged into the
// sub-document as-is.

var personalSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"firstName", "lastName", "email", "phone"},
	"properties": map[string]interface{}{
		"firstName": map[string]interface{}{"type": "string", "minLength": 1},
		"lastName":  map[string]interface{}{"type": "string", "minLength": 1},
		"email":     map[string]interface{}{"type": "string", "format": "email"},
		"phone":     map[string]interface{}{"type": "string", "minLength": 7},
		"city":      map[string]interface{}{"type": "string"},
		"address":   map[string]interface{}{"type": "string"},
		"pincode":   map[string]interface{}{"type": "string"},
	},
}

var identitySchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"idType", "idNumber"},
	"properties": map[string]interface{}{
		"idType": map[string]interface{}{
			"type": "string",
			"enum": []interface{}{"passport", "national_id", "drivers_license"},
		},
		"idNumber":    map[string]interface{}{"type": "string", "minLength": 4},
		"issuedBy":    map[string]interface{}{"type": "string"},
		"expiryDate":  map[string]interface{}{"type": "string"},
		"nationality": map[string]interface{}{"type": "string"},
	},
}

var skillsSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"skills"},
	"properties": map[string]interface{}{
		"skills": map[string]interface{}{
			"type":     "array",
			"minItems": 1,
			"items":    map[string]interface{}{"type": "string", "minLength": 1},
		},
		"serviceAreas": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		},
		"experienceYears": map[string]interface{}{"type": "number", "minimum": 0},
		"summary":         map[string]interface{}{"type": "string"},
	},
}

var availabilitySchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"days"},
	"properties": map[string]interface{}{
		"days": map[string]interface{}{
			"type":     "array",
			"minItems": 1,
			"items": map[string]interface{}{
				"type": "string",
				"enum": []interface{}{
					"monday", "tuesday", "wednesday", "thursday",
					"friday", "saturday", "sunday",
				},
			},
		},
		"startTime": map[string]interface{}{"type": "string"},
		"endTime":   map[string]interface{}{"type": "string"},
		"fullTime":  map[string]interface{}{"type": "boolean"},
	},
}

var bankSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"accountHolder", "accountNumber", "bankName"},
	"properties": map[string]interface{}{
		"accountHolder": map[string]interface{}{"type": "string", "minLength": 1},
		"accountNumber": map[string]interface{}{"type": "string", "minLength": 6},
		"bankName":      map[string]interface{}{"type": "string", "minLength": 1},
		"branchCode":    map[string]interface{}{"type": "string"},
	},
}

// The accepted flag arrives as a bool from the SPA and as a string from
// multipart form posts, so the schema admits both and coerceBool normalizes.
var agreementSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"accepted"},
	"properties": map[string]interface{}{
		"accepted": map[string]interface{}{
			"type": []interface{}{"boolean", "string", "number"},
		},
	},
}
