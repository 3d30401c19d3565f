package fhir

import "sort"

// knownResourceTypes lists the FHIR R4 resource types the search engine accepts
// in type positions (_has, _include targets, :Type modifiers).
var knownResourceTypes = map[string]bool{
	"Account": true, "ActivityDefinition": true, "AdverseEvent": true,
	"AllergyIntolerance": true, "Appointment": true, "AppointmentResponse": true,
	"AuditEvent": true, "Basic": true, "Binary": true, "BodyStructure": true,
	"Bundle": true, "CapabilityStatement": true, "CarePlan": true, "CareTeam": true,
	"ChargeItem": true, "Claim": true, "ClaimResponse": true, "ClinicalImpression": true,
	"CodeSystem": true, "Communication": true, "CommunicationRequest": true,
	"Composition": true, "ConceptMap": true, "Condition": true, "Consent": true,
	"Contract": true, "Coverage": true, "DetectedIssue": true, "Device": true,
	"DeviceRequest": true, "DeviceUseStatement": true, "DiagnosticReport": true,
	"DocumentReference": true, "Encounter": true, "Endpoint": true,
	"EpisodeOfCare": true, "ExplanationOfBenefit": true, "FamilyMemberHistory": true,
	"Flag": true, "Goal": true, "Group": true, "HealthcareService": true,
	"ImagingStudy": true, "Immunization": true, "ImmunizationRecommendation": true,
	"Invoice": true, "List": true, "Location": true, "Media": true, "Medication": true,
	"MedicationAdministration": true, "MedicationDispense": true,
	"MedicationRequest": true, "MedicationStatement": true, "MessageHeader": true,
	"NutritionOrder": true, "Observation": true, "OperationOutcome": true,
	"Organization": true, "Patient": true, "PaymentNotice": true, "Person": true,
	"PlanDefinition": true, "Practitioner": true, "PractitionerRole": true,
	"Procedure": true, "Provenance": true, "Questionnaire": true,
	"QuestionnaireResponse": true, "RelatedPerson": true, "RequestGroup": true,
	"ResearchStudy": true, "ResearchSubject": true, "RiskAssessment": true,
	"Schedule": true, "SearchParameter": true, "ServiceRequest": true, "Slot": true,
	"Specimen": true, "StructureDefinition": true, "Subscription": true,
	"Substance": true, "SupplyDelivery": true, "SupplyRequest": true, "Task": true,
	"ValueSet": true, "VisionPrescription": true,
}

// IsKnownResourceType checks whether rt names a supported resource type.
func IsKnownResourceType(rt string) bool {
	return knownResourceTypes[rt]
}

// KnownResourceTypes returns the supported resource types, sorted.
func KnownResourceTypes() []string {
	out := make([]string, 0, len(knownResourceTypes))
	for rt := range knownResourceTypes {
		out = append(out, rt)
	}
	sort.Strings(out)
	return out
}
