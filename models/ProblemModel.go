package models

// TestCase is one stdin/stdout pair a submission is judged against
type TestCase struct {
	Stdin          string `dynamodbav:"stdin" json:"stdin"`
	ExpectedStdout string `dynamodbav:"expectedStdout" json:"expectedStdout"`
}

// Problem is one entry in the problem bank
type Problem struct {
	ProblemID  string     `dynamodbav:"problemId" json:"problemId"`
	Title      string     `dynamodbav:"title" json:"title"`
	Difficulty string     `dynamodbav:"difficulty,omitempty" json:"difficulty,omitempty"`
	TestCases  []TestCase `dynamodbav:"testCases" json:"testCases"`
}

// ProblemsTable is the DynamoDB table name for the problem bank
const ProblemsTable = "Problems"
