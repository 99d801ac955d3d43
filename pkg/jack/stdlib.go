package jack

// The cross-class return-type registry, pre-seeded with every function of the Hack OS
// (Math, String, Array, Output, Screen, Keyboard, Memory, Sys) so the compiler can
// resolve calls into the standard library without having parsed its source.
//
// User subroutines are added to a copy of this map once every class has been parsed (by
// NewLowerer and NewTypeChecker), so by the time codegen runs the registry also covers
// every subroutine of the compiled program.
var StandardLibraryABI = map[string]DataType{
	"Math.multiply": {Main: Int},
	"Math.divide":   {Main: Int},
	"Math.min":      {Main: Int},
	"Math.max":      {Main: Int},
	"Math.sqrt":     {Main: Int},
	"Math.abs":      {Main: Int},

	"String.new":          {Main: Object, Subtype: "String"},
	"String.dispose":      {Main: Void},
	"String.length":       {Main: Int},
	"String.charAt":       {Main: Char},
	"String.setCharAt":    {Main: Void},
	"String.appendChar":   {Main: Object, Subtype: "String"},
	"String.eraseLastChar": {Main: Void},
	"String.intValue":     {Main: Int},
	"String.setInt":       {Main: Void},
	"String.backSpace":    {Main: Char},
	"String.doubleQuote":  {Main: Char},
	"String.newLine":      {Main: Char},

	"Array.new":     {Main: Object, Subtype: "Array"},
	"Array.dispose": {Main: Void},

	"Output.moveCursor": {Main: Void},
	"Output.printChar":  {Main: Void},
	"Output.printString": {Main: Void},
	"Output.printInt":   {Main: Void},
	"Output.println":    {Main: Void},
	"Output.backSpace":  {Main: Void},

	"Screen.setColor": {Main: Void},
	"Screen.drawPixel": {Main: Void},
	"Screen.drawLine":  {Main: Void},
	"Screen.drawRectangle": {Main: Void},
	"Screen.drawCircle": {Main: Void},
	"Screen.clearScreen": {Main: Void},

	"Keyboard.keyPressed": {Main: Char},
	"Keyboard.readChar":   {Main: Char},
	"Keyboard.readLine":   {Main: Object, Subtype: "String"},
	"Keyboard.readInt":    {Main: Int},

	"Memory.peek":    {Main: Int},
	"Memory.poke":    {Main: Void},
	"Memory.alloc":   {Main: Object, Subtype: "Array"},
	"Memory.deAlloc": {Main: Void},

	"Sys.halt":  {Main: Void},
	"Sys.error": {Main: Void},
	"Sys.wait":  {Main: Void},
	"Sys.init":  {Main: Void},
}

// Builds a fresh return-type registry seeded with the Hack OS ABI, ready to be extended
// with every user-defined subroutine of the parsed program.
func NewReturnTypeRegistry() map[string]DataType {
	registry := make(map[string]DataType, len(StandardLibraryABI))
	for k, v := range StandardLibraryABI {
		registry[k] = v
	}
	return registry
}
