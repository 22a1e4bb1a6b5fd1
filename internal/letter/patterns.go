package letter

import (
	"regexp"

	"rttline/internal/domain"
)

const datePattern = `\d{1,2}[/.-]\d{1,2}[/.-]\d{4}|\d{4}[/-]\d{1,2}[/-]\d{1,2}`

var (
	letterDateRe      = regexp.MustCompile(`(?m)(?:^[ \t]*(?:letter date|date)|\bdated)\s*:?\s*(` + datePattern + `)`)
	appointmentDateRe = regexp.MustCompile(`\b(?:clinic date|appointment date|seen in clinic on|seen on|attend(?:ed|ing)\b[^.\n]{0,60}?\bappointment\b[^.\n]{0,30}?\bon)\s*:?\s*(` + datePattern + `)`)
	nearbyDateRe      = regexp.MustCompile(`\bon\s+(` + datePattern + `)`)
	diagnosisRe       = regexp.MustCompile(`\bdiagnosis\s*:\s*([^\n]+)`)
	resultsRe         = regexp.MustCompile(`\b(?:showed|revealed|demonstrated|results?(?:\s+(?:were|was|are|is|showed|revealed))?)\s*:?\s+([^.\n]+)`)
	sentenceSplitRe   = regexp.MustCompile(`[.!?](?:\s+|$)|\n`)
)

type testPattern struct {
	test domain.TestType
	re   *regexp.Regexp
}

// testPatterns is matched in domain.TestTypes order.
var testPatterns = []testPattern{
	{domain.TestMRI, regexp.MustCompile(`\bmri\b|magnetic resonance`)},
	{domain.TestCT, regexp.MustCompile(`\bct\b|computed tomography`)},
	{domain.TestPETScan, regexp.MustCompile(`\bpet scan\b`)},
	{domain.TestXRay, regexp.MustCompile(`\bx-?rays?\b|\bradiographs?\b`)},
	{domain.TestUltrasound, regexp.MustCompile(`\bultrasound\b|\buss\b|\bsonograph`)},
	{domain.TestBlood, regexp.MustCompile(`\bblood tests?\b|\bbloods\b|\bblood work\b|\bfbc\b`)},
	{domain.TestECG, regexp.MustCompile(`\becg\b|\belectrocardiogram\b`)},
	{domain.TestEchocardiogram, regexp.MustCompile(`\bechocardiogra|\becho\b`)},
	{domain.TestColonoscopy, regexp.MustCompile(`\bcolonoscop`)},
	{domain.TestGastroscopy, regexp.MustCompile(`\bgastroscop|\bogd\b`)},
	{domain.TestCystoscopy, regexp.MustCompile(`\bcystoscop`)},
	{domain.TestEndoscopy, regexp.MustCompile(`\bendoscop`)},
	{domain.TestBiopsy, regexp.MustCompile(`\bbiops(?:y|ies)\b`)},
	{domain.TestNerveConduction, regexp.MustCompile(`\bnerve conduction\b`)},
	{domain.TestUrodynamics, regexp.MustCompile(`\burodynamic`)},
	{domain.TestLungFunction, regexp.MustCompile(`\blung function\b|\bspirometr`)},
	{domain.TestBoneDensityScan, regexp.MustCompile(`\bdexa\b|\bbone density\b`)},
	{domain.TestNuclearBoneScan, regexp.MustCompile(`\bbone scan\b`)},
	{domain.TestAudiogram, regexp.MustCompile(`\baudiogra|\bhearing test\b`)},
	{domain.TestAngiogram, regexp.MustCompile(`\bangiogra`)},
	{domain.TestMammogram, regexp.MustCompile(`\bmammogra`)},
	{domain.TestSleepStudy, regexp.MustCompile(`\bsleep stud`)},
	{domain.TestHolterMonitor, regexp.MustCompile(`\bholter\b|\b24[- ]hour tape\b`)},
	{domain.TestStressTest, regexp.MustCompile(`\bexercise (?:stress |tolerance )?test\b|\bstress test\b`)},
	{domain.TestAllergyTest, regexp.MustCompile(`\ballergy test`)},
	{domain.TestSkinPrickTesting, regexp.MustCompile(`\bskin prick`)},
	{domain.TestUrineTest, regexp.MustCompile(`\burine (?:test|sample|dip)|\burinalysis\b`)},
	{domain.TestGeneticTest, regexp.MustCompile(`\bgenetic test`)},
	{domain.TestVisualFieldTest, regexp.MustCompile(`\bvisual fields?\b`)},
	{domain.TestOCTScan, regexp.MustCompile(`\boct\b`)},
}

type categoryPattern struct {
	category domain.ActionCategory
	re       *regexp.Regexp
}

// categoryPatterns locate action keywords other than diagnostics, which come
// from testPatterns.
var categoryPatterns = []categoryPattern{
	{domain.CategoryAppointment, regexp.MustCompile(`\bfollow[- ]?up\b|\bappointment\b|\breview (?:(?:him|her|them|the patient) )?(?:in|again)\b|\breturn to clinic\b|\bsee (?:him|her|them|the patient) again\b`)},
	{domain.CategoryWaitingList, regexp.MustCompile(`\bwaiting list\b|\blisted for\b|\blist (?:him|her|them|the patient) for\b|\bput on the list\b`)},
	{domain.CategoryGPLetter, regexp.MustCompile(`\bgp\b|\bgeneral practitioner\b`)},
	{domain.CategoryTreatment, regexp.MustCompile(`\bsurgery\b|\boperation\b|\binjection\b|\bphysiotherapy\b|\bmedication\b|\bprescribed?\b|\bstarted on\b`)},
	{domain.CategoryReferral, regexp.MustCompile(`\brefer(?:ral|red|ring)?\b`)},
}

var (
	anatomyRe  = regexp.MustCompile(`\b(?:(left|right|bilateral)\s+)?(lumbar spine|cervical spine|thoracic spine|spine|knees?|hips?|shoulders?|ankles?|wrists?|elbows?|hands?|feet|foot|back|neck|abdomen|chest|bladder|prostate|kidneys?|bowel|colon|eyes?|ears?|throat|heart|lungs?|liver|breast|skin|thyroid)\b`)
	severities = []string{"end-stage", "severe", "advanced", "significant", "moderate", "mild", "early", "acute", "chronic"}
)

var (
	medicationRe = regexp.MustCompile(`\b(paracetamol|ibuprofen|naproxen|codeine|co-codamol|tramadol|morphine|amitriptyline|gabapentin|pregabalin|omeprazole|lansoprazole|metformin|amoxicillin|prednisolone|diclofenac|tamsulosin|finasteride|atorvastatin|simvastatin|ramipril|amlodipine|bisoprolol|aspirin|clopidogrel|warfarin|apixaban|levothyroxine|salbutamol|sertraline|citalopram|fluoxetine|mirabegron|solifenacin|oxybutynin)\b(?:\s+(\d+(?:\.\d+)?\s*(?:mg|mcg|g|ml)))?(?:\s+(once daily|twice daily|three times daily|four times daily|od|bd|tds|qds|daily|nocte|prn|as required|weekly))?`)
	referralRe   = regexp.MustCompile(`\brefer(?:ral|red|ring)?\b(?:[^.\n]{0,40}?\bto|\s+for)\s+(?:the\s+)?(physiotherapy|pain clinic|pain management|dietitian|occupational therapy|podiatry|orthotics|psychology|speech and language therapy|district nurse|hand therapy|continence service|oncology|cardiology|rheumatology|neurology|urology|dermatology|gastroenterology|orthopaedics|ent)\b(?:[^.\n]{0,30}?\bfor\s+(\d+\s+(?:weeks?|months?|sessions?)))?`)
	procedureRe  = regexp.MustCompile(`\b(total knee replacement|total hip replacement|knee replacement|hip replacement|shoulder replacement|knee arthroscopy|shoulder arthroscopy|arthroscopy|carpal tunnel release|trigger finger release|cataract surgery|hernia repair|cholecystectomy|appendicectomy|tonsillectomy|septoplasty|grommets|turp|hysterectomy|laparoscopy|spinal decompression|discectomy|bunion correction|ankle fusion|rotator cuff repair|acl reconstruction|varicose vein surgery|haemorrhoidectomy|circumcision|vasectomy|mastectomy|lumpectomy)\b`)
	surgeryRe    = regexp.MustCompile(`\b(?:surgery|surgical|operation|operative)\b`)
	injectionRe  = regexp.MustCompile(`\b(?:(?:cortico)?steroid injection|injection)\b`)
)

var (
	followUpRe   = regexp.MustCompile(`\bfollow[- ]?up\b|\breview (?:(?:him|her|them|the patient) )?(?:in|again)\b|\bsee (?:him|her|them|the patient) again\b|\breturn to clinic\b`)
	noFollowUpRe = regexp.MustCompile(`\bno (?:further )?(?:follow[- ]?up|review)\b|\bnot (?:require|need)(?:s)? (?:any )?(?:further )?(?:follow[- ]?up|review)\b`)
	timeframeRe  = regexp.MustCompile(`\b(?:in|within|after)\s+(\d+|one|two|three|four|five|six|eight|twelve)\s+(days?|weeks?|months?|years?)\b`)
	bookedRe     = regexp.MustCompile(`\balready booked\b|\bhas been booked\b|\bbooked for\b|\bis booked\b`)
	toBookRe     = regexp.MustCompile(`\bplease (?:book|arrange)\b|\bto be booked\b|\bto be arranged\b|\bneeds? to be booked\b`)
	numberWords  = map[string]int{"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "eight": 8, "twelve": 12}
)
