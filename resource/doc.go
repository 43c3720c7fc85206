// Package resource implements the bounded accounting layer shared by the
// expression evaluator, the template reader, and the template unraveler: a
// byte counter and a nesting-depth guard that together make worst-case cost
// predictable regardless of how an expression or template tree is shaped.
//
// Nothing here is specific to expressions or templates. Every allocation
// that becomes visible to a caller of those packages is expected to flow
// through a *Counter obtained from this package, so that a single limit
// (EvaluationOptions.MaxMemory in the expression package, or a reader's
// configured budget) bounds the whole pipeline rather than each stage separately.
package resource
