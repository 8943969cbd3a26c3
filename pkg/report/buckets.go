package report

// Bucket is one column of the cross-category percentage matrix.
type Bucket string

// Matrix bucket columns, in sheet order. Several are never produced by the
// current rules but are carried as zero columns because the consuming
// spreadsheet expects the full set.
const (
	BucketCentralFunctions Bucket = "Centrala funkt"
	BucketSupportSMS       Bucket = "Support SMS"
	BucketSupportLTS       Bucket = "Support LTS"
	BucketSupportSysbio    Bucket = "Support sysbio"
	BucketDataMgmt         Bucket = "Data mgmt"
	BucketHumanData        Bucket = "Human data"
	BucketSysdev           Bucket = "sysdev"
	BucketPipelinesTools   Bucket = "Pipelines & Tools"
	BucketSCoRe            Bucket = "SCoRe"
	BucketTrainingNetwork  Bucket = "Training & Nat netw"
	BucketELIXIR           Bucket = "ELIXIR"
	BucketBIIF             Bucket = "BIIF"
	BucketAIDADH           Bucket = "AIDA DH"
	BucketOther            Bucket = "Övrigt"
)

// MatrixBuckets lists every bucket column in sheet order.
var MatrixBuckets = []Bucket{
	BucketCentralFunctions,
	BucketSupportSMS,
	BucketSupportLTS,
	BucketSupportSysbio,
	BucketDataMgmt,
	BucketHumanData,
	BucketSysdev,
	BucketPipelinesTools,
	BucketSCoRe,
	BucketTrainingNetwork,
	BucketELIXIR,
	BucketBIIF,
	BucketAIDADH,
	BucketOther,
}

// Top-level projects with dedicated support buckets.
const (
	generalSupportProject  = "National Bioinformatics Support"
	longTermSupportProject = "Long-term Support"
)

// elixirIssueID is the sentinel issue collecting all ELIXIR work.
const elixirIssueID = 3774

// consultationIssueIDs is the small allow-list of issues whose consultation
// time counts as general support regardless of project.
var consultationIssueIDs = map[int]struct{}{
	3499: {},
	7000: {},
}

// ignoredActivities are excluded from the matrix entirely. Their hours
// still count on the support-type sheets.
var ignoredActivities = map[string]struct{}{
	"Professional Development":     {},
	"Absence (Vacation/VAB/Other)": {},
	"Internal NBIS":                {},
	"Administration":               {},
	"Internal consultation":        {},
}

// bucketInput is the subset of an entry the matrix classifier keys off.
// Activity and project names must match the Redmine strings byte-for-byte.
type bucketInput struct {
	topLevelProject string
	activity        string
	issueID         *int
}

// BucketResult is the outcome of matrix classification for one entry.
type BucketResult struct {
	// Bucket is the matched column. Empty when Ignore or Unclassified.
	Bucket Bucket

	// Ignore means the entry is deliberately excluded from the matrix
	// and from its total.
	Ignore bool

	// Unclassified means no rule matched; the entry is excluded from
	// every bucket and reported as a warning.
	Unclassified bool

	// Rule names the matched rule, for diagnostics.
	Rule string
}

// bucketRule is one row of the ordered decision list.
type bucketRule struct {
	name    string
	bucket  Bucket
	ignore  bool
	matches func(bucketInput) bool
}

// bucketRules is evaluated top to bottom, first match wins. Order is load
// bearing: later rules are broader than earlier ones and would otherwise
// capture entries the earlier rules are meant to catch.
var bucketRules = []bucketRule{
	{
		name:   "general_support",
		bucket: BucketSupportSMS,
		matches: func(in bucketInput) bool {
			return in.topLevelProject == generalSupportProject &&
				(in.activity == "Support" || in.activity == "Consultation")
		},
	},
	{
		name:   "longterm_support",
		bucket: BucketSupportLTS,
		matches: func(in bucketInput) bool {
			return in.topLevelProject == longTermSupportProject &&
				(in.activity == "Support" || in.activity == "Consultation")
		},
	},
	{
		name:   "elixir_issue",
		bucket: BucketELIXIR,
		matches: func(in bucketInput) bool {
			return in.issueID != nil && *in.issueID == elixirIssueID
		},
	},
	{
		name:   "internal_activity",
		ignore: true,
		matches: func(in bucketInput) bool {
			_, ok := ignoredActivities[in.activity]
			return ok
		},
	},
	{
		name:   "external_consultation",
		bucket: BucketSupportSMS,
		matches: func(in bucketInput) bool {
			return in.topLevelProject != generalSupportProject &&
				in.topLevelProject != longTermSupportProject &&
				in.activity == "Consultation"
		},
	},
	{
		name:   "allowlisted_consultation",
		bucket: BucketSupportSMS,
		matches: func(in bucketInput) bool {
			if in.issueID == nil || in.activity != "Consultation" {
				return false
			}
			_, ok := consultationIssueIDs[*in.issueID]
			return ok
		},
	},
	{
		name:   "management",
		bucket: BucketCentralFunctions,
		matches: func(in bucketInput) bool {
			return in.activity == "NBIS Management"
		},
	},
	{
		name:   "data_management",
		bucket: BucketDataMgmt,
		matches: func(in bucketInput) bool {
			return in.activity == "Support (DM)" || in.activity == "Consultation (DM)"
		},
	},
	{
		name:   "development",
		bucket: BucketPipelinesTools,
		matches: func(in bucketInput) bool {
			return in.activity == "Development"
		},
	},
	{
		name:   "training_outreach",
		bucket: BucketTrainingNetwork,
		matches: func(in bucketInput) bool {
			return in.activity == "Training" || in.activity == "Outreach"
		},
	},
	{
		name:   "external_support",
		bucket: BucketOther,
		matches: func(in bucketInput) bool {
			return in.topLevelProject != generalSupportProject &&
				in.topLevelProject != longTermSupportProject &&
				in.activity == "Support"
		},
	},
}

// ClassifyBucket routes one entry to its matrix bucket. It is a pure
// function of the top-level project name, activity name, and issue id.
func ClassifyBucket(topLevelProject, activity string, issueID *int) BucketResult {
	in := bucketInput{topLevelProject: topLevelProject, activity: activity, issueID: issueID}
	for _, rule := range bucketRules {
		if rule.matches(in) {
			return BucketResult{Bucket: rule.bucket, Ignore: rule.ignore, Rule: rule.name}
		}
	}
	return BucketResult{Unclassified: true}
}

// RuleDescription is one row of the rule table, for the `rules` command.
type RuleDescription struct {
	Position int
	Name     string
	Bucket   Bucket
	Ignore   bool
}

// Rules returns the decision list in evaluation order.
func Rules() []RuleDescription {
	out := make([]RuleDescription, 0, len(bucketRules))
	for i, r := range bucketRules {
		out = append(out, RuleDescription{
			Position: i + 1,
			Name:     r.name,
			Bucket:   r.bucket,
			Ignore:   r.ignore,
		})
	}
	return out
}
