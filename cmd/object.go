package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emrgen/ormstore"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var objectCmd = &cobra.Command{
	Use:   "object",
	Short: "object commands",
}

func init() {
	objectCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	objectCmd.AddCommand(createObjectCmd())
	objectCmd.AddCommand(getObjectCmd())
	objectCmd.AddCommand(updateObjectCmd())
	objectCmd.AddCommand(deleteObjectCmd())
	objectCmd.AddCommand(publishObjectCmd())
	objectCmd.AddCommand(unpublishObjectCmd())
	objectCmd.AddCommand(addVersionCmd())
	objectCmd.AddCommand(listVersionsCmd())
}

func createObjectCmd() *cobra.Command {
	var objectType string
	var values []string

	var required = []string{"type"}

	command := &cobra.Command{
		Use:     "create",
		Short:   "create an object",
		Example: "orm object create --type article --set title=Hello --set tags=3,1,2",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			withEngine(func(ctx context.Context, engine *ormstore.Engine) error {
				obj, err := engine.New(objectType)
				if err != nil {
					return err
				}
				if err := setValues(obj, values); err != nil {
					return err
				}

				id, err := engine.Insert(ctx, obj)
				if err != nil {
					return err
				}

				logrus.Infof("%s created with id: %d", objectType, id)
				return nil
			})
		},
	}

	command.Flags().StringVarP(&objectType, "type", "t", "", "entity type (required)")
	command.Flags().StringArrayVarP(&values, "set", "s", nil, "field=value, repeatable")

	command.Flags().SortFlags = false

	return command
}

func getObjectCmd() *cobra.Command {
	var objectType string
	var id int64

	var required = []string{"type", "id"}

	command := &cobra.Command{
		Use:     "get",
		Short:   "get an object",
		Example: "orm object get --type article --id 1",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			withEngine(func(ctx context.Context, engine *ormstore.Engine) error {
				obj, err := engine.Load(ctx, objectType, id)
				if err != nil {
					return err
				}

				table := tablewriter.NewWriter(os.Stdout)
				table.SetHeader([]string{"Field", "Value"})
				table.Append([]string{"id", strconv.FormatInt(obj.ID(), 10)})
				for _, name := range obj.Config().FieldNames() {
					table.Append([]string{name, formatValue(obj.Get(name))})
				}
				table.Render()

				return nil
			})
		},
	}

	command.Flags().StringVarP(&objectType, "type", "t", "", "entity type (required)")
	command.Flags().Int64VarP(&id, "id", "i", 0, "object id (required)")

	command.Flags().SortFlags = false

	return command
}

func updateObjectCmd() *cobra.Command {
	var objectType string
	var id int64
	var values []string

	var required = []string{"type", "id", "set"}

	command := &cobra.Command{
		Use:     "update",
		Short:   "update an object",
		Example: "orm object update --type article --id 1 --set title=World",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			withEngine(func(ctx context.Context, engine *ormstore.Engine) error {
				obj, err := engine.Load(ctx, objectType, id)
				if err != nil {
					return err
				}
				if err := setValues(obj, values); err != nil {
					return err
				}
				changed := obj.Changed()

				if _, err := engine.Update(ctx, obj); err != nil {
					return err
				}

				logrus.Infof("%s %d updated: %s", objectType, id, strings.Join(changed, ", "))
				return nil
			})
		},
	}

	command.Flags().StringVarP(&objectType, "type", "t", "", "entity type (required)")
	command.Flags().Int64VarP(&id, "id", "i", 0, "object id (required)")
	command.Flags().StringArrayVarP(&values, "set", "s", nil, "field=value, repeatable (required)")

	command.Flags().SortFlags = false

	return command
}

func deleteObjectCmd() *cobra.Command {
	var objectType string
	var id int64

	var required = []string{"type", "id"}

	command := &cobra.Command{
		Use:     "delete",
		Short:   "delete an object",
		Example: "orm object delete --type article --id 1",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			withEngine(func(ctx context.Context, engine *ormstore.Engine) error {
				obj, err := engine.Load(ctx, objectType, id)
				if err != nil {
					return err
				}
				if err := engine.Delete(ctx, obj); err != nil {
					return err
				}

				logrus.Infof("%s %d deleted", objectType, id)
				return nil
			})
		},
	}

	command.Flags().StringVarP(&objectType, "type", "t", "", "entity type (required)")
	command.Flags().Int64VarP(&id, "id", "i", 0, "object id (required)")

	command.Flags().SortFlags = false

	return command
}

func publishObjectCmd() *cobra.Command {
	var objectType string
	var id int64
	var version int64

	var required = []string{"type", "id"}

	command := &cobra.Command{
		Use:     "publish",
		Short:   "publish an object",
		Long:    "publish an object, applying the given version first when set",
		Example: "orm object publish --type article --id 1 --version 2",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			withEngine(func(ctx context.Context, engine *ormstore.Engine) error {
				obj, err := engine.Load(ctx, objectType, id)
				if err != nil {
					return err
				}
				if err := engine.Publish(ctx, obj, version); err != nil {
					return err
				}

				logrus.Infof("%s %d published", objectType, id)
				return nil
			})
		},
	}

	command.Flags().StringVarP(&objectType, "type", "t", "", "entity type (required)")
	command.Flags().Int64VarP(&id, "id", "i", 0, "object id (required)")
	command.Flags().Int64VarP(&version, "version", "v", 0, "version to publish")

	command.Flags().SortFlags = false

	return command
}

func unpublishObjectCmd() *cobra.Command {
	var objectType string
	var id int64

	var required = []string{"type", "id"}

	command := &cobra.Command{
		Use:     "unpublish",
		Short:   "unpublish an object",
		Example: "orm object unpublish --type article --id 1",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			withEngine(func(ctx context.Context, engine *ormstore.Engine) error {
				obj, err := engine.Load(ctx, objectType, id)
				if err != nil {
					return err
				}
				if err := engine.Unpublish(ctx, obj); err != nil {
					return err
				}

				logrus.Infof("%s %d unpublished", objectType, id)
				return nil
			})
		},
	}

	command.Flags().StringVarP(&objectType, "type", "t", "", "entity type (required)")
	command.Flags().Int64VarP(&id, "id", "i", 0, "object id (required)")

	command.Flags().SortFlags = false

	return command
}

func addVersionCmd() *cobra.Command {
	var objectType string
	var id int64
	var values []string

	var required = []string{"type", "id"}

	command := &cobra.Command{
		Use:     "version",
		Short:   "add a version of an object",
		Long:    "store a new version of an object, with the given values applied",
		Example: "orm object version --type article --id 1 --set title=Draft",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			withEngine(func(ctx context.Context, engine *ormstore.Engine) error {
				obj, err := engine.Load(ctx, objectType, id)
				if err != nil {
					return err
				}
				if err := setValues(obj, values); err != nil {
					return err
				}

				number, err := engine.AddVersion(ctx, obj)
				if err != nil {
					return err
				}

				logrus.Infof("%s %d version %d added", objectType, id, number)
				return nil
			})
		},
	}

	command.Flags().StringVarP(&objectType, "type", "t", "", "entity type (required)")
	command.Flags().Int64VarP(&id, "id", "i", 0, "object id (required)")
	command.Flags().StringArrayVarP(&values, "set", "s", nil, "field=value, repeatable")

	command.Flags().SortFlags = false

	return command
}

func listVersionsCmd() *cobra.Command {
	var objectType string
	var id int64

	var required = []string{"type", "id"}

	command := &cobra.Command{
		Use:     "versions",
		Short:   "list the versions of an object",
		Example: "orm object versions --type article --id 1",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, required) {
				return
			}

			withEngine(func(ctx context.Context, engine *ormstore.Engine) error {
				versions, err := engine.Versions(ctx, objectType, id)
				if err != nil {
					return err
				}

				table := tablewriter.NewWriter(os.Stdout)
				table.SetHeader([]string{"Version", "Actor", "Created"})
				for _, v := range versions {
					table.Append([]string{
						strconv.FormatInt(v.Number, 10),
						strconv.FormatInt(v.ActorID, 10),
						v.CreatedAt.Format(time.RFC3339),
					})
				}
				table.Render()

				return nil
			})
		},
	}

	command.Flags().StringVarP(&objectType, "type", "t", "", "entity type (required)")
	command.Flags().Int64VarP(&id, "id", "i", 0, "object id (required)")

	command.Flags().SortFlags = false

	return command
}

// setValues applies field=value pairs to obj.
func setValues(obj *ormstore.Object, values []string) error {
	for _, pair := range values {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("invalid value %q, expected field=value", pair)
		}
		if err := obj.Set(strings.TrimSpace(name), value); err != nil {
			return err
		}
	}
	return nil
}

func formatValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case time.Time:
		return value.Format(time.RFC3339)
	case []int64:
		parts := make([]string, len(value))
		for i, id := range value {
			parts[i] = strconv.FormatInt(id, 10)
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprint(v)
}

// checkMissingFlags checks if the required flags are set and returns ok if they are set
func checkMissingFlags(cmd *cobra.Command, flags []string) bool {
	var missingFlags []string
	var providedFlags []string
	for _, required := range flags {
		if !cmd.Flag(required).Changed {
			missingFlags = append(missingFlags, required)
		} else {
			value := cmd.Flag(required).Value.String()
			providedFlags = append(providedFlags, fmt.Sprintf("--%s=%s", required, value))
		}
	}

	if len(missingFlags) > 0 {
		var msg string
		for _, f := range missingFlags {
			msg += fmt.Sprintf("--%s ", f)
		}

		color.Red("missing: %s\n", msg)
		if len(providedFlags) > 0 {
			color.Green("provided: %s\n", strings.Join(providedFlags, " "))
		}

		cmd.Println("")
		_ = cmd.Usage()

		return true
	}

	return false
}
