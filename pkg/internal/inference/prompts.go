package inference

import "github.com/yeisme/docpipe/pkg/internal/model"

const jsonOnly = "\n\nReturn ONLY valid JSON, no additional text."

// prompts 每种文档类型的抽取提示词，未知类型使用 other.
var prompts = map[model.DocumentType]string{
	model.DocumentTypeIEP: `You are analyzing an Individualized Education Program (IEP) document.
Extract the following structured information in JSON format:
{
  "studentInfo": {"name": "...", "dob": "YYYY-MM-DD", "grade": "..."},
  "iepDate": "YYYY-MM-DD",
  "reviewDate": "YYYY-MM-DD",
  "annualGoals": [{"domain": "communication|academic|social|behavioral", "goal": "...", "targetDate": "YYYY-MM-DD"}],
  "accommodations": ["..."],
  "services": [{"type": "speech|occupational|physical|social_skills", "frequency": "...", "duration": "..."}],
  "presentLevels": {"communication": "...", "academic": "...", "socialEmotional": "..."},
  "progressMonitoring": "...",
  "teamMembers": ["..."]
}` + jsonOnly,

	model.DocumentTypeABAReport: `You are analyzing an Applied Behavior Analysis (ABA) progress report.
Extract the following structured information in JSON format:
{
  "reportPeriod": {"startDate": "YYYY-MM-DD", "endDate": "YYYY-MM-DD"},
  "hoursOfService": "...",
  "skillAssessment": {
    "communication": {"manding": "...", "tacting": "...", "intraverbals": "..."},
    "socialSkills": {"turnTaking": "...", "parallelPlay": "...", "jointAttention": "..."},
    "selfHelpSkills": {"handwashing": "...", "dressing": "...", "toileting": "..."}
  },
  "behaviorData": [{"behavior": "...", "baseline": "...", "current": "...", "trend": "improving|stable|worsening"}],
  "currentPrograms": [{"program": "...", "goal": "...", "progress": "...", "nextSteps": "..."}],
  "recommendations": ["..."],
  "goalsNextQuarter": ["..."]
}` + jsonOnly,

	model.DocumentTypeMedicalRecord: `You are analyzing a pediatric medical or developmental evaluation record.
Extract the following structured information in JSON format:
{
  "visitDate": "YYYY-MM-DD",
  "provider": "...",
  "chiefComplaint": "...",
  "currentMedications": [{"medication": "...", "dosage": "...", "purpose": "..."}],
  "allergies": ["..."],
  "vitalSigns": {"weight": "...", "height": "...", "temperature": "...", "bloodPressure": "...", "heartRate": "..."},
  "developmentalStatus": {"socialCommunication": "...", "behavioralPatterns": "...", "motorSkills": "..."},
  "currentServices": [{"type": "...", "frequency": "..."}],
  "currentConcerns": ["..."],
  "recommendations": ["..."],
  "followUp": {"nextVisit": "YYYY-MM-DD", "actionItems": ["..."]},
  "assessmentTools": ["..."]
}` + jsonOnly,

	model.DocumentTypeOther: `Extract key information from this document in JSON format:
{
  "documentSummary": "brief summary",
  "keyPoints": ["..."],
  "actionItems": ["..."],
  "importantDates": [{"date": "YYYY-MM-DD", "description": "..."}],
  "recommendations": ["..."]
}` + jsonOnly,
}

// PromptFor 返回文档类型的提示词.
func PromptFor(t model.DocumentType) string {
	if p, ok := prompts[t]; ok {
		return p
	}

	return prompts[model.DocumentTypeOther]
}

// BuildPrompt 拼接完整提示词.
func BuildPrompt(t model.DocumentType, text string) string {
	return PromptFor(t) + "\n\nDocument text:\n" + text + "\n\nExtract the information and return JSON only."
}
