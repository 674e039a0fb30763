/*
Package selector evaluates boolean event-selection expressions.

# Expression Syntax

	<expr> := <expr> 'or' <expr>
	        | <expr> 'and' <expr>
	        | 'not' <expr>
	        | '!' <expr>
	        | <value> <op> <value>
	        | <value>

	<op> := '==' | '!=' | '<' | '>' | '<=' | '>=' | 'contains'
	<value> := 'string' | "string" | number | true | false | null | name

'or' binds looser than 'and'. Names are resolved lazily through a Lookup,
so only the attributes an expression mentions are read from the event:

	ok, err := selector.Eval("EBeam.ebeamCharge > 0.1 and Evr.present_40", lookup)

# Missing Names

A name the Lookup cannot resolve evaluates to nil: it is falsy, and every
ordered comparison against it is false. WithStrict turns missing names into
an UnknownNameError instead.

# Lists

'contains' tests membership when the left side is a list, and substring
containment for strings:

	Evr.eventCodes contains 162

A list is truthy when it is non-empty.
*/
package selector
