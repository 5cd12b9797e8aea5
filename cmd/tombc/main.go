// Copyright 2024 The Tomb Authors
// This file is part of Tomb.

// Command tombc is the Tomb language compiler.
//
// Usage:
//
//	tombc [flags] <source.tomb>
//
// Flags:
//
//	-o <output>    Output file (default: stdout)
//	-emit <stage>  Emit intermediate output: tokens, ast, asm, bytecode (default: bytecode)
//	-verify        Run the bytecode verifier and report any findings (default: true)
//	-v <level>     Verbosity level: 0=silent .. 5=trace (default: warn)
//	-version       Print version and exit
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/tombchain/tombc/compiler"
	"github.com/tombchain/tombc/internal/glog"
	"github.com/tombchain/tombc/lang/ast"
	"github.com/tombchain/tombc/lang/codegen"
	"github.com/tombchain/tombc/lang/lexer"
	"github.com/tombchain/tombc/lang/parser"
	"github.com/tombchain/tombc/lang/stdlib"
	"github.com/tombchain/tombc/lang/types"
	"github.com/tombchain/tombc/lang/vm"
)

const version = "0.1.0"

func main() {
	var (
		output = flag.String("o", "", "Output file (default: stdout)")
		emit   = flag.String("emit", "bytecode", "Emit stage: tokens, ast, asm, bytecode")
		verify = flag.Bool("verify", true, "Run the bytecode verifier and report any findings")
		ver    = flag.Bool("version", false, "Print version and exit")
		vlevel = flag.Int("v", int(glog.LevelWarn), "Verbosity level (0=silent .. 5=trace)")
	)
	flag.Parse()
	glog.Default.SetLevel(glog.Level(*vlevel))

	if *ver {
		fmt.Printf("tombc %s\n", version)
		os.Exit(0)
	}

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: tombc [flags] <source.tomb>")
		os.Exit(1)
	}

	filename := flag.Arg(0)
	source, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	glog.Default.Info("read %s (%d bytes), emitting %s", filename, len(source), *emit)

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	switch *emit {
	case "tokens":
		emitTokens(out, filename, string(source))
	case "ast":
		emitAST(out, filename, string(source))
	case "asm":
		emitAsm(out, filename, string(source), *verify)
	case "bytecode":
		emitBytecode(out, filename, string(source), *verify)
	default:
		fmt.Fprintf(os.Stderr, "unknown emit stage: %s\n", *emit)
		os.Exit(1)
	}
}

func emitTokens(out *os.File, filename, source string) {
	l := lexer.New(filename, source)
	tokens := l.Tokenize()
	for _, tok := range tokens {
		fmt.Fprintf(out, "%s\t%s\t%q\n", tok.Pos, tok.Kind, tok.Lexeme)
	}
	if lerr := l.Err(); lerr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", lerr)
		os.Exit(1)
	}
}

func emitAST(out *os.File, filename, source string) {
	reg := types.NewRegistry()
	builtins := stdlib.New(reg)
	modules, errs := parser.Parse(filename, source, reg, builtins, codegen.Generate)
	for _, m := range modules {
		switch mod := m.(type) {
		case *ast.Contract:
			fmt.Fprintf(out, "Contract %s: %d method(s), %d event(s)\n", mod.Name, len(mod.Methods), len(mod.Events))
		case *ast.Script:
			fmt.Fprintf(out, "Script %s (hidden=%v)\n", mod.Name, mod.Hidden)
		}
	}
	reportErrors(errs)
}

func emitAsm(out *os.File, filename, source string, runVerify bool) {
	artifacts, errs := compiler.Compile(filename, source)
	for _, a := range artifacts {
		fmt.Fprintf(out, "; module %s (%s)\n", a.Name, a.Kind)
		fmt.Fprint(out, vm.Disassemble(a.Bytecode))
	}
	if runVerify {
		runVerifier(artifacts)
	}
	reportErrors(errs)
}

func emitBytecode(out *os.File, filename, source string, runVerify bool) {
	artifacts, errs := compiler.Compile(filename, source)
	if runVerify {
		runVerifier(artifacts)
	}
	reportErrors(errs)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(artifacts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runVerifier(artifacts []*compiler.Artifact) {
	for _, a := range artifacts {
		out := &codegen.Output{Bytecode: a.Bytecode, Constants: a.Constants}
		for _, m := range a.ABI.Methods {
			out.Methods = append(out.Methods, codegen.MethodOffset{Name: m.Name, Offset: m.Offset})
		}
		for _, verr := range codegen.Verify(out) {
			fmt.Fprintf(os.Stderr, "verify: %s: %v\n", a.Name, verr)
		}
	}
}

func reportErrors(errs []error) {
	if len(errs) == 0 {
		return
	}
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "error: %v\n", e)
	}
	os.Exit(1)
}
