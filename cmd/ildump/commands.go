package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/EWSoftware/SHFB-sub006/gac"
	"github.com/EWSoftware/SHFB-sub006/ir"
	"github.com/EWSoftware/SHFB-sub006/metadata"
)

// isTerminal reports whether w is a terminal that accepts styled output.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newTypesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "types <file>",
		Short: "List type definitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(args[0], opts.generics)
			if err != nil {
				return err
			}
			writeTypes(cmd.OutOrStdout(), s.entries())
			return nil
		},
	}
}

func writeTypes(w io.Writer, entries []typeEntry) {
	styled := isTerminal(w)
	for _, e := range entries {
		kind := fmt.Sprintf("%-9s", e.kind)
		if styled {
			kind = kindStyle.Render(kind)
		}
		fmt.Fprintf(w, "%s %s\n", kind, e.name)
	}
}

func newMembersCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "members <file> <type>",
		Short: "Dump the members of a type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(args[0], opts.generics)
			if err != nil {
				return err
			}
			id, err := s.lookup(args[1])
			if err != nil {
				return err
			}
			return ir.Dump(cmd.OutOrStdout(), s.g, id)
		},
	}
}

func newInstantiateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "instantiate <file> <type> <arg>...",
		Short: "Instantiate a generic type and dump the result",
		Long: `Instantiate applies a generic type definition to type arguments given by
full name. Arguments resolve against the assembly's own types, then the
system types.`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(args[0], opts.generics)
			if err != nil {
				return err
			}
			id, err := s.instantiate(args[1], args[2:])
			if err != nil {
				return err
			}
			opts.log.Debug("instantiated",
				zap.String("type", s.g.FullName(id)),
				zap.Int("instances", s.mod.InstanceCount()))
			return ir.Dump(cmd.OutOrStdout(), s.g, id)
		},
	}
}

func newReferencesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "references <file>",
		Short: "List referenced assemblies and where they resolve",
		Long: `References prints every AssemblyRef of the file. Each reference is probed
in the file's directory, then in the configured search_dirs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := metadata.Open(args[0])
			if err != nil {
				return err
			}
			refs, err := md.AssemblyReferences()
			if err != nil {
				return err
			}
			dirs := append([]string{filepath.Dir(args[0])}, opts.cfg.SearchDirs...)
			r := gac.NewDirResolver(dirs...)
			r.Verify = verifyAssembly
			w := cmd.OutOrStdout()
			for _, ref := range refs {
				path, ok, err := r.Resolve(cmd.Context(), ref)
				if err != nil {
					return err
				}
				if !ok {
					path = "(not found)"
				}
				fmt.Fprintf(w, "%s\n    %s\n", ref, path)
			}
			return nil
		},
	}
}

// verifyAssembly accepts a candidate file whose assembly identity matches
// ref by name and, when ref carries one, by version. Files that are not
// assemblies are rejected rather than reported.
func verifyAssembly(path string, ref gac.Reference) (bool, error) {
	md, err := metadata.Open(path)
	if err != nil {
		return false, nil
	}
	self, err := md.Assembly()
	if err != nil {
		return false, nil
	}
	if !strings.EqualFold(self.Name, ref.Name) {
		return false, nil
	}
	return ref.Version == (gac.Version{}) || self.Version == ref.Version, nil
}
