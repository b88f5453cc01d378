package transformer

import (
	"context"

	"claimant-consumer/internal/extraction"
)

type contractDocument struct {
	ID              map[string]interface{} `json:"_id"`
	People          []interface{}          `json:"people"`
	StartDate       interface{}            `json:"startDate"`
	ClosedDate      interface{}            `json:"closedDate"`
	ContractType    string                 `json:"contractType"`
	DeclaredDate    interface{}            `json:"declaredDate"`
	CoupleContract  bool                   `json:"coupleContract"`
	ClaimSuspension interface{}            `json:"claimSuspension"`
	CreatedDateTime dateValue              `json:"createdDateTime"`
	EntitlementDate interface{}            `json:"entitlementDate"`
}

type Contract struct{}

func NewContract() *Contract {
	return &Contract{}
}

func (c *Contract) Transform(_ context.Context, dbObject string) (string, error) {
	obj, err := extraction.Decode([]byte(dbObject))
	if err != nil {
		return "", err
	}

	id, err := extraction.Object(obj, "_id")
	if err != nil {
		return "", err
	}
	people, err := extraction.List(obj, "people")
	if err != nil {
		return "", err
	}
	contractType, err := extraction.String(obj, "contractType")
	if err != nil {
		return "", err
	}
	coupleContract, err := extraction.Bool(obj, "coupleContract")
	if err != nil {
		return "", err
	}
	createdDateTime, err := extraction.String(obj, "createdDateTime")
	if err != nil {
		return "", err
	}

	return marshal(contractDocument{
		ID:              id,
		People:          people,
		StartDate:       optionalNumber(obj, "startDate"),
		ClosedDate:      optionalNumber(obj, "closedDate"),
		ContractType:    contractType,
		DeclaredDate:    optionalNumber(obj, "declaredDate"),
		CoupleContract:  coupleContract,
		ClaimSuspension: optionalObject(obj, "claimSuspension"),
		CreatedDateTime: dateValue{Date: createdDateTime},
		EntitlementDate: optionalNumber(obj, "entitlementDate"),
	})
}

// optionalNumber yields nil, encoded as null, when the field is absent or
// not a number.
func optionalNumber(obj map[string]interface{}, field string) interface{} {
	n, err := extraction.Number(obj, field)
	if err != nil {
		return nil
	}
	return n
}

func optionalObject(obj map[string]interface{}, field string) interface{} {
	m, err := extraction.Object(obj, field)
	if err != nil {
		return nil
	}
	return m
}
